package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore"
	"github.com/polaris-ecosystems/rfp-agent/internal/objectstore"
)

// secondsToDuration converts a tool-argument integer (or the zero value
// when the caller omits expirySeconds) into a Duration for the
// objectstore.Clamp*Expiry helpers, which apply the actual bound.
func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

const (
	IdentDDBGetItem     Ident = "ddb_get_item"
	IdentDDBQueryPK     Ident = "ddb_query_pk"
	IdentDDBQueryGSI1   Ident = "ddb_query_gsi1"
	IdentS3ListObjects  Ident = "s3_list_objects"
	IdentS3GetObjectTxt Ident = "s3_get_object_text"
	IdentS3HeadObject   Ident = "s3_head_object"
	IdentS3PresignGet   Ident = "s3_presign_get"
	IdentS3PresignPut   Ident = "s3_presign_put"
)

const ddbGetItemSchema = `{
	"type": "object",
	"properties": {
		"pk": {"type": "string", "minLength": 1, "maxLength": 512},
		"sk": {"type": "string", "minLength": 1, "maxLength": 512}
	},
	"required": ["pk", "sk"],
	"additionalProperties": false
}`

const ddbQueryPKSchema = `{
	"type": "object",
	"properties": {
		"pk": {"type": "string", "minLength": 1, "maxLength": 512},
		"skPrefix": {"type": "string", "maxLength": 512},
		"limit": {"type": "integer", "minimum": 1, "maximum": 200},
		"continuationToken": {"type": "string", "maxLength": 4096}
	},
	"required": ["pk"],
	"additionalProperties": false
}`

const ddbQueryGSI1Schema = `{
	"type": "object",
	"properties": {
		"gsi1pk": {"type": "string", "minLength": 1, "maxLength": 512},
		"skPrefix": {"type": "string", "maxLength": 512},
		"limit": {"type": "integer", "minimum": 1, "maximum": 200},
		"continuationToken": {"type": "string", "maxLength": 4096}
	},
	"required": ["gsi1pk"],
	"additionalProperties": false
}`

// RegisterDynamoDBTools wires read-only Storage-category tools directly
// onto a kvstore.Store (spec section 4.4's ddb_get_item/ddb_query_pk/
// ddb_query_gsi1). All three are read-only lookups; no write path is
// exposed through the tool boundary — durable writes go through the
// domain repositories (e.g. internal/opportunity) instead.
func RegisterDynamoDBTools(registry *Registry, store kvstore.Store) error {
	get, err := NewTool(IdentDDBGetItem, "Fetch a single row by primary key.", CategoryDynamoDB, AccessRead, []byte(ddbGetItemSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			PK string `json:"pk"`
			SK string `json:"sk"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return store.Get(ctx, kvstore.Key{PK: in.PK, SK: in.SK})
	})
	if err != nil {
		return err
	}

	queryPK, err := NewTool(IdentDDBQueryPK, "Query rows under a primary key, optionally filtered by sort-key prefix.", CategoryDynamoDB, AccessRead, []byte(ddbQueryPKSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			PK                string `json:"pk"`
			SKPrefix          string `json:"skPrefix"`
			Limit             int    `json:"limit"`
			ContinuationToken string `json:"continuationToken"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return store.Query(ctx, kvstore.QueryInput{
			PKValue:           in.PK,
			SKPrefix:          in.SKPrefix,
			Limit:             in.Limit,
			ContinuationToken: in.ContinuationToken,
		})
	})
	if err != nil {
		return err
	}

	queryGSI1, err := NewTool(IdentDDBQueryGSI1, "Query rows by the GSI1 cross-cutting index, optionally filtered by sort-key prefix.", CategoryDynamoDB, AccessRead, []byte(ddbQueryGSI1Schema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			GSI1PK            string `json:"gsi1pk"`
			SKPrefix          string `json:"skPrefix"`
			Limit             int    `json:"limit"`
			ContinuationToken string `json:"continuationToken"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return store.Query(ctx, kvstore.QueryInput{
			IndexGSI1:         true,
			PKValue:           in.GSI1PK,
			SKPrefix:          in.SKPrefix,
			Limit:             in.Limit,
			ContinuationToken: in.ContinuationToken,
		})
	})
	if err != nil {
		return err
	}

	for _, tool := range []*Tool{get, queryPK, queryGSI1} {
		registry.Register(tool)
	}
	return nil
}

const maxGetObjectTextBytes = 1 << 20 // 1 MiB; matches the general leaf-output slimming intent of bounded tool output

const s3KeySchemaFragment = `"key": {"type": "string", "minLength": 1, "maxLength": 1024}`

const s3HeadSchema = `{
	"type": "object",
	"properties": {` + s3KeySchemaFragment + `},
	"required": ["key"],
	"additionalProperties": false
}`

const s3GetObjectTextSchema = `{
	"type": "object",
	"properties": {` + s3KeySchemaFragment + `},
	"required": ["key"],
	"additionalProperties": false
}`

const s3PresignGetSchema = `{
	"type": "object",
	"properties": {
		` + s3KeySchemaFragment + `,
		"expirySeconds": {"type": "integer", "minimum": 1}
	},
	"required": ["key"],
	"additionalProperties": false
}`

const s3PresignPutSchema = `{
	"type": "object",
	"properties": {
		` + s3KeySchemaFragment + `,
		"contentType": {"type": "string", "maxLength": 255},
		"expirySeconds": {"type": "integer", "minimum": 1}
	},
	"required": ["key", "contentType"],
	"additionalProperties": false
}`

const s3ListObjectsSchema = `{
	"type": "object",
	"properties": {
		"prefix": {"type": "string", "maxLength": 1024}
	},
	"required": ["prefix"],
	"additionalProperties": false
}`

// ObjectLister is implemented by object-store backends that can enumerate
// keys under a prefix. The narrow Store port (spec section 6) intentionally
// omits listing; S3Store implements this separately since only the
// s3_list_objects tool needs it.
type ObjectLister interface {
	ListObjects(ctx context.Context, prefix string) ([]objectstore.ObjectMeta, error)
}

// RegisterObjectStoreTools wires the Storage category's S3 tools (spec
// section 4.4) onto store. lister is optional; when nil, s3_list_objects is
// not registered.
func RegisterObjectStoreTools(registry *Registry, store objectstore.Store, lister ObjectLister) error {
	head, err := NewTool(IdentS3HeadObject, "Fetch object metadata (size, content type, ETag) without downloading its body.", CategoryS3, AccessRead, []byte(s3HeadSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return store.Head(ctx, in.Key)
	})
	if err != nil {
		return err
	}

	getText, err := NewTool(IdentS3GetObjectTxt, "Download an object's contents as text, bounded to 1 MiB.", CategoryS3, AccessRead, []byte(s3GetObjectTextSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		data, err := store.GetBytes(ctx, in.Key, maxGetObjectTextBytes)
		if err != nil {
			return nil, err
		}
		return map[string]any{"key": in.Key, "content": string(data)}, nil
	})
	if err != nil {
		return err
	}

	presignGet, err := NewTool(IdentS3PresignGet, "Produce a time-limited URL to download an object.", CategoryS3, AccessRead, []byte(s3PresignGetSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Key           string `json:"key"`
			ExpirySeconds int    `json:"expirySeconds"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		expiry := objectstore.ClampGetExpiry(secondsToDuration(in.ExpirySeconds))
		return store.PresignGet(ctx, in.Key, expiry)
	})
	if err != nil {
		return err
	}

	presignPut, err := NewTool(IdentS3PresignPut, "Produce a time-limited URL to upload an object.", CategoryS3, AccessOperator, []byte(s3PresignPutSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Key           string `json:"key"`
			ContentType   string `json:"contentType"`
			ExpirySeconds int    `json:"expirySeconds"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		expiry := objectstore.ClampPutExpiry(secondsToDuration(in.ExpirySeconds))
		return store.PresignPut(ctx, in.Key, in.ContentType, expiry)
	})
	if err != nil {
		return err
	}

	toRegister := []*Tool{head, getText, presignGet, presignPut}

	if lister != nil {
		list, err := NewTool(IdentS3ListObjects, "List object keys and metadata under a prefix.", CategoryS3, AccessRead, []byte(s3ListObjectsSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				Prefix string `json:"prefix"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return lister.ListObjects(ctx, in.Prefix)
		})
		if err != nil {
			return err
		}
		toRegister = append(toRegister, list)
	}

	for _, tool := range toRegister {
		registry.Register(tool)
	}
	return nil
}
