package platform

import (
	"context"
	"fmt"
	"io"
	neturl "net/url"
	"strings"

	"github.com/bytedance/sonic"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/shared/schema"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
	"github.com/GriffinCanCode/miniapp/internal/shared/utils"
)

// SignatureHeader carries the detached signature over the asset manifest body
const SignatureHeader = "Signature"

// Options configures the platform endpoints
type Options struct {
	BaseURL string
	HostID  string
	Preview bool
}

// Client is the typed platform API
type Client struct {
	http    *httpclient.Client
	base    string
	hostID  string
	preview bool
	logger  *zap.Logger
}

// New creates a platform client over an HTTP client
func New(http *httpclient.Client, opts Options, logger *zap.Logger) (*Client, error) {
	base, err := validateBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	if opts.HostID == "" || strings.ContainsAny(opts.HostID, "/?#") {
		return nil, types.NewError(types.KindInvalidURL, fmt.Sprintf("host id %q is invalid", opts.HostID))
	}
	return &Client{
		http:    http,
		base:    base,
		hostID:  opts.HostID,
		preview: opts.Preview,
		logger:  logging.OrNop(logger).Named("platform"),
	}, nil
}

// Preview reports whether the client targets unpublished versions
func (c *Client) Preview() bool {
	return c.preview
}

// ListAll returns every bundle published to this host
func (c *Client) ListAll(ctx context.Context) ([]types.Info, error) {
	return c.infoList(ctx, c.hostURL("miniapps"))
}

// Info returns the listing entries of one app
func (c *Client) Info(ctx context.Context, appID string) ([]types.Info, error) {
	if err := types.ValidateAppID(appID); err != nil {
		return nil, err
	}
	return c.infoList(ctx, c.hostURL("miniapp", appID, "info"))
}

func (c *Client) infoList(ctx context.Context, url string) ([]types.Info, error) {
	body, _, err := c.get(ctx, url, infoListValidator)
	if err != nil {
		return nil, err
	}
	var infos []types.Info
	if err := sonic.Unmarshal(body, &infos); err != nil {
		return nil, types.Wrap(types.KindInvalidResponseData, err, "decode listing")
	}
	return infos, nil
}

// Metadata returns the permission manifest of one bundle version
func (c *Client) Metadata(ctx context.Context, identity types.Identity) (*types.Manifest, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	url := c.hostURL("miniapp", identity.AppID, "miniappversion", identity.VersionID, "metadata")
	body, _, err := c.get(ctx, url, metadataValidator)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		BundleManifest types.Manifest `json:"bundleManifest"`
	}
	if err := sonic.Unmarshal(body, &envelope); err != nil {
		return nil, types.Wrap(types.KindInvalidResponseData, err, "decode metadata")
	}
	manifest := envelope.BundleManifest
	manifest.VersionID = identity.VersionID
	return &manifest, nil
}

// AssetManifest returns the flat file list of one bundle version. Raw keeps
// the exact body so the signature can be checked over it.
func (c *Client) AssetManifest(ctx context.Context, identity types.Identity) (*types.AssetManifest, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	url := c.hostURL("miniapp", identity.AppID, "version", identity.VersionID, "manifest")
	body, resp, err := c.get(ctx, url, assetManifestValidator)
	if err != nil {
		return nil, err
	}

	var manifest types.AssetManifest
	if err := sonic.Unmarshal(body, &manifest); err != nil {
		return nil, types.Wrap(types.KindInvalidResponseData, err, "decode asset manifest")
	}

	seen := make(map[string]bool, len(manifest.Files))
	files := make([]string, 0, len(manifest.Files))
	for _, f := range manifest.Files {
		cleaned, err := utils.CleanRelativePath(f)
		if err != nil {
			return nil, types.Wrap(types.KindInvalidResponseData, err, "asset manifest")
		}
		if seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		files = append(files, cleaned)
	}
	manifest.Files = files

	if manifest.BaseURL != "" {
		base, err := validateBaseURL(manifest.BaseURL)
		if err != nil {
			return nil, types.Wrap(types.KindInvalidResponseData, err, "asset manifest base url")
		}
		manifest.BaseURL = base
	}

	manifest.Raw = append([]byte(nil), body...)
	manifest.Signature = strings.TrimSpace(resp.Header.Get(SignatureHeader))
	return &manifest, nil
}

// PublicKey returns one signing key. Keys are host-wide, never preview-scoped.
func (c *Client) PublicKey(ctx context.Context, keyID string) (*types.PublicKey, error) {
	if keyID == "" {
		return nil, types.NewError(types.KindInvalidResponseData, "public key id is empty")
	}
	url := c.base + "/host/" + neturl.PathEscape(c.hostID) + "/keys/" + neturl.PathEscape(keyID)
	body, _, err := c.get(ctx, url, publicKeyValidator)
	if err != nil {
		return nil, err
	}
	var key types.PublicKey
	if err := sonic.Unmarshal(body, &key); err != nil {
		return nil, types.Wrap(types.KindInvalidResponseData, err, "decode public key")
	}
	return &key, nil
}

// AssetURL builds the download URL of one listed file
func (c *Client) AssetURL(identity types.Identity, manifest *types.AssetManifest, file string) string {
	prefix := c.hostURL("miniapp", identity.AppID, "version", identity.VersionID, "files")
	if manifest != nil && manifest.BaseURL != "" {
		prefix = manifest.BaseURL
	}
	return prefix + "/" + escapePath(file)
}

// FetchAsset streams one listed file into w
func (c *Client) FetchAsset(ctx context.Context, identity types.Identity, manifest *types.AssetManifest, file string, w io.Writer) (int64, error) {
	url := c.AssetURL(identity, manifest, file)
	c.logger.Debug("fetching asset", logging.Identity(identity), logging.Path(file))
	return c.http.Fetch(ctx, url, w)
}

func (c *Client) get(ctx context.Context, url string, validator *jsonschema.Schema) ([]byte, *httpclient.Response, error) {
	resp, err := c.http.Get(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	if err := schema.Validate(validator, resp.Body); err != nil {
		c.logger.Warn("platform response rejected", zap.String("url", url), zap.Error(err))
		return nil, nil, types.Wrap(types.KindInvalidResponseData, err, "unexpected response shape")
	}
	return resp.Body, resp, nil
}

func (c *Client) hostURL(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.base)
	b.WriteString("/host/")
	b.WriteString(neturl.PathEscape(c.hostID))
	if c.preview {
		b.WriteString("/preview")
	}
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(neturl.PathEscape(s))
	}
	return b.String()
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = neturl.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func validateBaseURL(raw string) (string, error) {
	u, err := neturl.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", types.Wrap(types.KindInvalidURL, err, "base url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", types.NewError(types.KindInvalidURL, fmt.Sprintf("base url %q must be absolute http(s)", raw))
	}
	return strings.TrimRight(u.String(), "/"), nil
}
