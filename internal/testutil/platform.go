package testutil

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

// HostID is the host every fake platform serves
const HostID = "test-host"

// Version is one published bundle version
type Version struct {
	AppID       string
	VersionID   string
	VersionTag  string
	DisplayName string
	Required    []types.PermissionRequest
	Optional    []types.PermissionRequest
	Scopes      []types.AccessTokenScope
	CustomMeta  map[string]string
	Files       map[string][]byte
	Signer      *Signer
	// BadSignature publishes a signature that does not match the manifest
	BadSignature bool
}

// Identity returns the version's bundle identity
func (v *Version) Identity() types.Identity {
	return types.Identity{AppID: v.AppID, VersionID: v.VersionID}
}

// Interceptor may answer a request with a status instead of the fake. It
// returns 0 to let the request through.
type Interceptor func(r *http.Request) int

// Platform is an httptest-backed distribution backend
type Platform struct {
	Server *httptest.Server

	mu        sync.Mutex
	versions  map[types.Identity]*Version
	current   map[string]string
	keys      map[string]*Signer
	hits      map[string]int
	total     int
	intercept Interceptor
}

// NewPlatform starts a fake platform that is closed with the test
func NewPlatform(t testing.TB) *Platform {
	t.Helper()
	p := &Platform{
		versions: make(map[types.Identity]*Version),
		current:  make(map[string]string),
		keys:     make(map[string]*Signer),
		hits:     make(map[string]int),
	}

	mux := http.NewServeMux()
	for _, prefix := range []string{"/host/{hostId}", "/host/{hostId}/preview"} {
		mux.HandleFunc("GET "+prefix+"/miniapps", p.handleListAll)
		mux.HandleFunc("GET "+prefix+"/miniapp/{appId}/info", p.handleInfo)
		mux.HandleFunc("GET "+prefix+"/miniapp/{appId}/miniappversion/{versionId}/metadata", p.handleMetadata)
		mux.HandleFunc("GET "+prefix+"/miniapp/{appId}/version/{versionId}/manifest", p.handleManifest)
		mux.HandleFunc("GET "+prefix+"/miniapp/{appId}/version/{versionId}/files/{file...}", p.handleFile)
	}
	mux.HandleFunc("GET /host/{hostId}/keys/{keyId}", p.handleKey)

	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.total++
		p.hits[r.URL.Path]++
		intercept := p.intercept
		p.mu.Unlock()

		if intercept != nil {
			if status := intercept(r); status != 0 {
				writeJSON(w, status, map[string]interface{}{"code": status, "message": "intercepted"})
				return
			}
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(p.Server.Close)
	return p
}

// URL is the platform base URL
func (p *Platform) URL() string {
	return p.Server.URL
}

// Publish adds a version and makes it the app's current one
func (p *Platform) Publish(v *Version) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.versions[v.Identity()] = v
	p.current[v.AppID] = v.VersionID
	if v.Signer != nil {
		p.keys[v.Signer.ID] = v.Signer
	}
}

// Unpublish removes the app's current pointer, leaving versions fetchable
func (p *Platform) Unpublish(appID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current[appID] = ""
}

// Intercept installs a status override; nil removes it
func (p *Platform) Intercept(fn Interceptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intercept = fn
}

// Requests returns how many requests the platform has served
func (p *Platform) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Hits returns how many requests hit an exact path
func (p *Platform) Hits(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[path]
}

// HitsWithSuffix sums requests whose path ends in suffix
func (p *Platform) HitsWithSuffix(suffix string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for path, c := range p.hits {
		if strings.HasSuffix(path, suffix) {
			n += c
		}
	}
	return n
}

// Offline closes the server so every later request fails to connect
func (p *Platform) Offline() {
	p.Server.CloseClientConnections()
	p.Server.Close()
}

// ManifestBody returns the exact asset manifest bytes served for v
func ManifestBody(v *Version) []byte {
	files := make([]string, 0, len(v.Files))
	for name := range v.Files {
		files = append(files, name)
	}
	sort.Strings(files)

	body := struct {
		Manifest    []string `json:"manifest"`
		PublicKeyID string   `json:"publicKeyId,omitempty"`
	}{Manifest: files}
	if v.Signer != nil {
		body.PublicKeyID = v.Signer.ID
	}
	data, _ := sonic.Marshal(body)
	return data
}

func (p *Platform) lookup(r *http.Request) (*Version, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.PathValue("hostId") != HostID {
		return nil, false
	}
	v, ok := p.versions[types.Identity{AppID: r.PathValue("appId"), VersionID: r.PathValue("versionId")}]
	return v, ok
}

func (p *Platform) info(appID string) (types.Info, bool) {
	versionID, ok := p.current[appID]
	if !ok {
		return types.Info{}, false
	}
	if versionID == "" {
		return types.Info{ID: appID}, true
	}
	v := p.versions[types.Identity{AppID: appID, VersionID: versionID}]
	return types.Info{
		ID:          v.AppID,
		DisplayName: v.DisplayName,
		Version:     types.Version{VersionTag: v.VersionTag, VersionID: v.VersionID},
	}, true
}

func (p *Platform) handleListAll(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	appIDs := make([]string, 0, len(p.current))
	for appID, versionID := range p.current {
		if versionID != "" {
			appIDs = append(appIDs, appID)
		}
	}
	sort.Strings(appIDs)
	infos := make([]types.Info, 0, len(appIDs))
	for _, appID := range appIDs {
		info, _ := p.info(appID)
		infos = append(infos, info)
	}
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, infos)
}

func (p *Platform) handleInfo(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	info, ok := p.info(r.PathValue("appId"))
	p.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"code": 404, "message": "miniapp not found"})
		return
	}
	if info.Version.VersionID == "" {
		writeJSON(w, http.StatusOK, []types.Info{})
		return
	}
	writeJSON(w, http.StatusOK, []types.Info{info})
}

func (p *Platform) handleMetadata(w http.ResponseWriter, r *http.Request) {
	v, ok := p.lookup(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"code": 404, "message": "version not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bundleManifest": map[string]interface{}{
			"reqPermissions":         nonNil(v.Required),
			"optPermissions":         nonNil(v.Optional),
			"accessTokenPermissions": v.Scopes,
			"customMetaData":         v.CustomMeta,
		},
	})
}

func (p *Platform) handleManifest(w http.ResponseWriter, r *http.Request) {
	v, ok := p.lookup(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"code": 404, "message": "version not found"})
		return
	}
	body := ManifestBody(v)
	if v.Signer != nil {
		signed := body
		if v.BadSignature {
			signed = append([]byte("tampered"), body...)
		}
		w.Header().Set("Signature", v.Signer.Sign(signed))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (p *Platform) handleFile(w http.ResponseWriter, r *http.Request) {
	v, ok := p.lookup(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	data, ok := v.Files[r.PathValue("file")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"code": 404, "message": "file not found"})
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (p *Platform) handleKey(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	s, ok := p.keys[r.PathValue("keyId")]
	p.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"code": 404, "message": "key not found"})
		return
	}
	writeJSON(w, http.StatusOK, types.PublicKey{ID: s.ID, PemKey: s.PEM})
}

func nonNil(reqs []types.PermissionRequest) []types.PermissionRequest {
	if reqs == nil {
		return []types.PermissionRequest{}
	}
	return reqs
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
