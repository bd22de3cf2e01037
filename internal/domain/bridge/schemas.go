package bridge

import (
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/GriffinCanCode/miniapp/internal/shared/schema"
)

const envelopeSchema = `{
	"type": "object",
	"required": ["id", "action"],
	"properties": {
		"id": {"type": "string", "minLength": 1, "maxLength": 256},
		"action": {"type": "string", "minLength": 1, "maxLength": 128},
		"param": {"type": ["object", "null"]}
	}
}`

var envelopeValidator = schema.MustCompile("bridge/envelope.json", envelopeSchema)

var paramSchemas = map[string]string{
	actionRequestPermission: `{
		"type": "object",
		"required": ["permission"],
		"properties": {"permission": {"type": "string", "enum": ["location"]}}
	}`,
	actionRequestCustomPermissions: `{
		"type": "object",
		"required": ["permissions"],
		"properties": {
			"permissions": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["name"],
					"properties": {
						"name": {"type": "string", "minLength": 1},
						"description": {"type": "string"}
					}
				}
			}
		}
	}`,
	actionGetAccessToken: `{
		"type": "object",
		"required": ["audience", "scopes"],
		"properties": {
			"audience": {"type": "string", "minLength": 1},
			"scopes": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	actionSendMessageToContact:          messageSchema,
	actionSendMessageToMultipleContacts: messageSchema,
	actionSendMessageToContactID: `{
		"type": "object",
		"required": ["contactId", "messageToContact"],
		"properties": {
			"contactId": {"type": "string", "minLength": 1},
			"messageToContact": ` + messageBodySchema + `
		}
	}`,
	actionShareInfo: `{
		"type": "object",
		"required": ["shareInfo"],
		"properties": {
			"shareInfo": {
				"type": "object",
				"required": ["content"],
				"properties": {"content": {"type": "string"}}
			}
		}
	}`,
	actionLoadAd: adSchema,
	actionShowAd: adSchema,
	actionDownloadFile: `{
		"type": "object",
		"required": ["filename", "url"],
		"properties": {
			"filename": {"type": "string", "minLength": 1},
			"url": {"type": "string", "minLength": 1},
			"headers": {"type": ["object", "null"], "additionalProperties": {"type": "string"}}
		}
	}`,
}

const messageBodySchema = `{
	"type": "object",
	"required": ["text"],
	"properties": {
		"text": {"type": "string"},
		"image": {"type": "string"},
		"caption": {"type": "string"},
		"action": {"type": "string"},
		"bannerMessage": {"type": "string"}
	}
}`

const messageSchema = `{
	"type": "object",
	"required": ["messageToContact"],
	"properties": {"messageToContact": ` + messageBodySchema + `}
}`

const adSchema = `{
	"type": "object",
	"required": ["adType", "adUnitId"],
	"properties": {
		"adType": {"type": "string", "enum": ["interstitial", "rewarded"]},
		"adUnitId": {"type": "string", "minLength": 1}
	}
}`

var paramValidators = compileParamSchemas()

func compileParamSchemas() map[string]*jsonschema.Schema {
	out := make(map[string]*jsonschema.Schema, len(paramSchemas))
	for action, doc := range paramSchemas {
		out[action] = schema.MustCompile("bridge/params/"+action+".json", doc)
	}
	return out
}
