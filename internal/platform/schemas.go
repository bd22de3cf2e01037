package platform

import "github.com/GriffinCanCode/miniapp/internal/shared/schema"

const infoListSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["id"],
		"properties": {
			"id": {"type": "string"},
			"displayName": {"type": "string"},
			"icon": {"type": "string"},
			"version": {
				"type": "object",
				"properties": {
					"versionTag": {"type": "string"},
					"versionId": {"type": "string"}
				}
			}
		}
	}
}`

const metadataSchema = `{
	"type": "object",
	"required": ["bundleManifest"],
	"properties": {
		"bundleManifest": {
			"type": "object",
			"properties": {
				"reqPermissions": {"$ref": "#/$defs/permissions"},
				"optPermissions": {"$ref": "#/$defs/permissions"},
				"accessTokenPermissions": {
					"type": ["array", "null"],
					"items": {
						"type": "object",
						"required": ["audience"],
						"properties": {
							"audience": {"type": "string"},
							"scopes": {"type": ["array", "null"], "items": {"type": "string"}}
						}
					}
				},
				"customMetaData": {
					"type": ["object", "null"],
					"additionalProperties": {"type": "string"}
				}
			}
		}
	},
	"$defs": {
		"permissions": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"reason": {"type": "string"}
				}
			}
		}
	}
}`

const assetManifestSchema = `{
	"type": "object",
	"required": ["manifest"],
	"properties": {
		"manifest": {
			"type": "array",
			"minItems": 1,
			"items": {"type": "string"}
		},
		"publicKeyId": {"type": "string"},
		"baseUrl": {"type": "string"}
	}
}`

const publicKeySchema = `{
	"type": "object",
	"required": ["id", "pemKey"],
	"properties": {
		"id": {"type": "string"},
		"pemKey": {"type": "string", "minLength": 1}
	}
}`

var (
	infoListValidator      = schema.MustCompile("platform/info-list.json", infoListSchema)
	metadataValidator      = schema.MustCompile("platform/metadata.json", metadataSchema)
	assetManifestValidator = schema.MustCompile("platform/asset-manifest.json", assetManifestSchema)
	publicKeyValidator     = schema.MustCompile("platform/public-key.json", publicKeySchema)
)
