package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/goliatone/go-resource-cache/apierror"
)

// maxTextMessage bounds plain text error bodies used as messages.
const maxTextMessage = 512

// DecodeJSON decodes a response body into T. An empty body yields the zero
// value only for 204 and DELETE; anywhere else it is a decode failure, as is
// invalid JSON.
func DecodeJSON[T any](resp *Response) (T, error) {
	var out T
	if empty, err := emptyBody(resp); empty || err != nil {
		return out, err
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return out, apierror.Wrap(err, apierror.KindDecode, resp.StatusCode, "decode response body")
	}
	return out, nil
}

// DecodeRecord decodes a single record that may be wrapped as {"data": {...}}
// or sent bare.
func DecodeRecord[T any](resp *Response) (T, error) {
	var out T
	if empty, err := emptyBody(resp); empty || err != nil {
		return out, err
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return out, apierror.Wrap(err, apierror.KindDecode, resp.StatusCode, "decode response body")
	}

	payload := resp.Body
	if trimmed := bytes.TrimSpace(envelope.Data); len(trimmed) > 0 && trimmed[0] == '{' {
		payload = trimmed
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, apierror.Wrap(err, apierror.KindDecode, resp.StatusCode, "decode record")
	}
	return out, nil
}

// emptyBody reports whether resp carries no body, failing when the status
// and method promised one.
func emptyBody(resp *Response) (bool, error) {
	if resp == nil {
		return true, apierror.New(apierror.KindDecode, 0, "no response")
	}
	if len(bytes.TrimSpace(resp.Body)) > 0 {
		return false, nil
	}
	if resp.StatusCode == http.StatusNoContent || resp.Method == http.MethodDelete {
		return true, nil
	}
	return true, apierror.New(apierror.KindDecode, resp.StatusCode, "empty response body")
}

// serverMessage extracts a human readable message from an error body. It
// understands {"message"}, {"error": "..."}, {"error": {"message"}} and
// {"detail"}, and falls back to short plain text bodies.
func serverMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	var payload struct {
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		if body[0] != '{' && body[0] != '[' && len(body) <= maxTextMessage {
			return string(body)
		}
		return ""
	}

	if payload.Message != "" {
		return payload.Message
	}
	if len(payload.Error) > 0 {
		var text string
		if json.Unmarshal(payload.Error, &text) == nil && text != "" {
			return text
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return strings.TrimSpace(payload.Detail)
}
