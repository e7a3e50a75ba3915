package usecase

import (
	"encoding/base64"
	"encoding/json"
	"time"

	apperrors "github.com/tenantkit/secrets/internal/errors"
	keymgmtDomain "github.com/tenantkit/secrets/internal/keymgmt/domain"
)

// recordToData flattens a SecretRecord into the provider payload. Binary
// fields are base64 encoded and times are RFC3339 so the payload survives a
// JSON round trip through any backend unchanged.
func recordToData(record *keymgmtDomain.SecretRecord) map[string]any {
	data := map[string]any{
		"id":        record.ID,
		"tenantId":  record.TenantID,
		"name":      record.Name,
		"size":      record.Size,
		"createdAt": record.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": record.UpdatedAt.Format(time.RFC3339Nano),
	}

	if record.IsEncrypted() {
		data["ciphertext"] = base64.StdEncoding.EncodeToString(record.Ciphertext)
		data["keyId"] = record.KeyID
		data["algorithm"] = record.Algorithm
		if len(record.IV) > 0 {
			data["iv"] = base64.StdEncoding.EncodeToString(record.IV)
		}
	} else {
		data["value"] = record.Value
	}

	if record.ExpiresAt != nil {
		data["expiresAt"] = record.ExpiresAt.Format(time.RFC3339Nano)
	}
	if len(record.Tags) > 0 {
		tags := make(map[string]any, len(record.Tags))
		for k, v := range record.Tags {
			tags[k] = v
		}
		data["tags"] = tags
	}

	return data
}

// recordFromData rebuilds a SecretRecord from a provider payload.
func recordFromData(data map[string]any) (*keymgmtDomain.SecretRecord, error) {
	record := &keymgmtDomain.SecretRecord{
		ID:       asString(data["id"]),
		TenantID: asString(data["tenantId"]),
		Name:     asString(data["name"]),
		Size:     asInt(data["size"]),
		Value:    asString(data["value"]),
		KeyID:    asString(data["keyId"]),
	}
	if record.ID == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "secret payload has no id")
	}

	if encoded := asString(data["ciphertext"]); encoded != "" {
		ciphertext, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "secret payload ciphertext is not base64")
		}
		record.Ciphertext = ciphertext
		record.Algorithm = asString(data["algorithm"])
	}
	if encoded := asString(data["iv"]); encoded != "" {
		iv, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "secret payload iv is not base64")
		}
		record.IV = iv
	}

	if createdAt, err := time.Parse(time.RFC3339Nano, asString(data["createdAt"])); err == nil {
		record.CreatedAt = createdAt
	}
	if updatedAt, err := time.Parse(time.RFC3339Nano, asString(data["updatedAt"])); err == nil {
		record.UpdatedAt = updatedAt
	}
	if raw := asString(data["expiresAt"]); raw != "" {
		if expiresAt, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			record.ExpiresAt = &expiresAt
		}
	}

	if rawTags, ok := data["tags"].(map[string]any); ok {
		record.Tags = make(map[string]string, len(rawTags))
		for k, v := range rawTags {
			record.Tags[k] = asString(v)
		}
	}

	return record, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asInt tolerates the numeric types a JSON round trip can produce. The vault
// client decodes numbers with UseNumber, so json.Number is the common case on
// that backend.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return int(i)
	default:
		return 0
	}
}
