package bridge

import (
	"context"
	"fmt"
	neturl "net/url"
	"strings"

	"github.com/GriffinCanCode/miniapp/internal/domain/permission"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

// Action names understood by the dispatcher
const (
	actionGetUniqueID                   = "getUniqueId"
	actionGetMessagingUniqueID          = "getMessagingUniqueId"
	actionGetHostEnvironmentInfo        = "getHostEnvironmentInfo"
	actionRequestPermission             = "requestPermission"
	actionRequestCustomPermissions      = "requestCustomPermissions"
	actionGetUserName                   = "getUserName"
	actionGetProfilePhoto               = "getProfilePhoto"
	actionGetContacts                   = "getContacts"
	actionGetAccessToken                = "getAccessToken"
	actionGetPoints                     = "getPoints"
	actionSendMessageToContact          = "sendMessageToContact"
	actionSendMessageToContactID        = "sendMessageToContactId"
	actionSendMessageToMultipleContacts = "sendMessageToMultipleContacts"
	actionShareInfo                     = "shareInfo"
	actionLoadAd                        = "loadAd"
	actionShowAd                        = "showAd"
	actionDownloadFile                  = "downloadFile"
)

type handler func(ctx context.Context, d *Dispatcher, params map[string]interface{}) (interface{}, error)

type action struct {
	// gate is the permission that must be allowed before the host is called
	gate   types.PermissionType
	handle handler
}

var actions = map[string]action{
	actionGetUniqueID: {handle: func(ctx context.Context, d *Dispatcher, _ map[string]interface{}) (interface{}, error) {
		return d.host.UniqueID(ctx)
	}},
	actionGetMessagingUniqueID: {handle: func(ctx context.Context, d *Dispatcher, _ map[string]interface{}) (interface{}, error) {
		return d.host.MessagingUniqueID(ctx)
	}},
	actionGetHostEnvironmentInfo: {handle: func(ctx context.Context, d *Dispatcher, _ map[string]interface{}) (interface{}, error) {
		return d.host.EnvironmentInfo(ctx)
	}},
	actionRequestPermission:        {gate: types.PermissionLocation, handle: requestDevicePermission},
	actionRequestCustomPermissions: {handle: requestCustomPermissions},
	actionGetUserName: {gate: types.PermissionUserName, handle: func(ctx context.Context, d *Dispatcher, _ map[string]interface{}) (interface{}, error) {
		return d.host.UserName(ctx)
	}},
	actionGetProfilePhoto: {gate: types.PermissionProfilePhoto, handle: func(ctx context.Context, d *Dispatcher, _ map[string]interface{}) (interface{}, error) {
		return d.host.ProfilePhoto(ctx)
	}},
	actionGetContacts: {gate: types.PermissionContactList, handle: func(ctx context.Context, d *Dispatcher, _ map[string]interface{}) (interface{}, error) {
		return d.host.Contacts(ctx)
	}},
	actionGetAccessToken: {gate: types.PermissionAccessToken, handle: accessToken},
	actionGetPoints: {gate: types.PermissionPoints, handle: func(ctx context.Context, d *Dispatcher, _ map[string]interface{}) (interface{}, error) {
		return d.host.Points(ctx)
	}},
	actionSendMessageToContact:          {gate: types.PermissionSendMessage, handle: sendMessage(false)},
	actionSendMessageToContactID:        {gate: types.PermissionSendMessage, handle: sendMessageToID},
	actionSendMessageToMultipleContacts: {gate: types.PermissionSendMessage, handle: sendMessage(true)},
	actionShareInfo:                     {handle: shareInfo},
	actionLoadAd:                        {handle: loadAd},
	actionShowAd:                        {handle: showAd},
	actionDownloadFile:                  {gate: types.PermissionFileDownload, handle: downloadFile},
}

// Actions lists every action name the dispatcher routes
func Actions() []string {
	out := make([]string, 0, len(actions))
	for name := range actions {
		out = append(out, name)
	}
	return out
}

// Gate returns the permission an action is gated on, if any
func Gate(action string) (types.PermissionType, bool) {
	a, ok := actions[action]
	if !ok || a.gate == "" {
		return "", false
	}
	return a.gate, true
}

func requestDevicePermission(ctx context.Context, d *Dispatcher, params map[string]interface{}) (interface{}, error) {
	var p struct {
		Permission string `json:"permission"`
	}
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	granted, err := d.host.RequestDevicePermission(ctx, p.Permission)
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, Fail(types.BridgeErrPermissionDenied, p.Permission+" was denied by the user")
	}
	return string(types.GrantAllowed), nil
}

type customPermissionResult struct {
	Name   types.PermissionType `json:"name"`
	Status types.GrantStatus    `json:"status"`
}

// requestCustomPermissions escalates declared, known permissions to the
// host; everything else is answered and recorded as unavailable
func requestCustomPermissions(ctx context.Context, d *Dispatcher, params map[string]interface{}) (interface{}, error) {
	var p struct {
		Permissions []struct {
			Name        types.PermissionType `json:"name"`
			Description string               `json:"description"`
		} `json:"permissions"`
	}
	if err := bind(params, &p); err != nil {
		return nil, err
	}

	manifest := d.session.Manifest
	decided := make(map[types.PermissionType]permission.Decision)
	var escalate []types.PermissionRequest
	for _, req := range p.Permissions {
		if _, dup := decided[req.Name]; dup {
			continue
		}
		if !req.Name.Known() || !manifest.Declares(req.Name) {
			decided[req.Name] = permission.Decision{Type: req.Name, Status: types.GrantUnavailable}
			continue
		}
		decided[req.Name] = permission.Decision{Type: req.Name, Status: types.GrantDenied, Description: req.Description}
		escalate = append(escalate, types.PermissionRequest{Type: req.Name, Reason: req.Description})
	}

	if len(escalate) > 0 {
		answers, err := d.host.RequestCustomPermissions(ctx, escalate)
		if err != nil {
			return nil, err
		}
		for _, a := range answers {
			prev, asked := decided[a.Type]
			if !asked || prev.Status == types.GrantUnavailable || !a.Status.Valid() {
				continue
			}
			if a.Description == "" {
				a.Description = prev.Description
			}
			decided[a.Type] = a
		}
	}

	decisions := make([]permission.Decision, 0, len(decided))
	results := make([]customPermissionResult, 0, len(decided))
	seen := make(map[types.PermissionType]bool)
	for _, req := range p.Permissions {
		if seen[req.Name] {
			continue
		}
		seen[req.Name] = true
		dec := decided[req.Name]
		decisions = append(decisions, dec)
		results = append(results, customPermissionResult{Name: dec.Type, Status: dec.Status})
	}
	if _, err := d.perms.Record(ctx, d.session.Identity.AppID, manifest, decisions); err != nil {
		return nil, fmt.Errorf("record decisions: %w", err)
	}
	return map[string]interface{}{"permissions": results}, nil
}

func accessToken(ctx context.Context, d *Dispatcher, params map[string]interface{}) (interface{}, error) {
	var p struct {
		Audience string   `json:"audience"`
		Scopes   []string `json:"scopes"`
	}
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	declared, ok := d.session.Manifest.Scope(p.Audience)
	if !ok {
		return nil, Fail(types.BridgeErrAudienceNotSupported, fmt.Sprintf("audience %q is not declared", p.Audience))
	}
	allowed := make(map[string]bool, len(declared.Scopes))
	for _, s := range declared.Scopes {
		allowed[s] = true
	}
	for _, s := range p.Scopes {
		if !allowed[s] {
			return nil, Fail(types.BridgeErrScopesNotSupported, fmt.Sprintf("scope %q is not declared for %s", s, p.Audience))
		}
	}
	return d.host.AccessToken(ctx, p.Audience, p.Scopes)
}

type messageParams struct {
	ContactID string  `json:"contactId"`
	Message   Message `json:"messageToContact"`
}

func sendMessage(multiple bool) handler {
	return func(ctx context.Context, d *Dispatcher, params map[string]interface{}) (interface{}, error) {
		var p messageParams
		if err := bind(params, &p); err != nil {
			return nil, err
		}
		sent, err := d.host.SendMessage(ctx, MessageRequest{Message: p.Message, Multiple: multiple})
		if err != nil {
			return nil, err
		}
		if multiple {
			return sent, nil
		}
		if len(sent) == 0 {
			return nil, nil
		}
		return sent[0], nil
	}
}

func sendMessageToID(ctx context.Context, d *Dispatcher, params map[string]interface{}) (interface{}, error) {
	var p messageParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	sent, err := d.host.SendMessage(ctx, MessageRequest{Message: p.Message, ContactID: p.ContactID})
	if err != nil {
		return nil, err
	}
	if len(sent) == 0 {
		return nil, nil
	}
	return sent[0], nil
}

func shareInfo(ctx context.Context, d *Dispatcher, params map[string]interface{}) (interface{}, error) {
	var p struct {
		ShareInfo struct {
			Content string `json:"content"`
		} `json:"shareInfo"`
	}
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	if err := d.host.ShareInfo(ctx, p.ShareInfo.Content); err != nil {
		return nil, err
	}
	return "SUCCESS", nil
}

func loadAd(ctx context.Context, d *Dispatcher, params map[string]interface{}) (interface{}, error) {
	var ad Ad
	if err := bind(params, &ad); err != nil {
		return nil, err
	}
	if err := d.host.LoadAd(ctx, ad); err != nil {
		return nil, err
	}
	return "Ad loaded", nil
}

func showAd(ctx context.Context, d *Dispatcher, params map[string]interface{}) (interface{}, error) {
	var ad Ad
	if err := bind(params, &ad); err != nil {
		return nil, err
	}
	return d.host.ShowAd(ctx, ad)
}

func downloadFile(ctx context.Context, d *Dispatcher, params map[string]interface{}) (interface{}, error) {
	var req FileDownload
	if err := bind(params, &req); err != nil {
		return nil, err
	}
	u, err := neturl.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, Fail(types.BridgeErrUnexpectedFormat, "url must be absolute http(s)")
	}
	if strings.ContainsAny(req.FileName, `/\`) || req.FileName == "." || req.FileName == ".." {
		return nil, Fail(types.BridgeErrUnexpectedFormat, "filename must not contain a path")
	}
	return d.host.DownloadFile(ctx, req)
}
