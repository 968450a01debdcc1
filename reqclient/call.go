/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/billhaggle/reqguard/schema"
)

// Call executes the call and decodes the JSON response into T.
// If sch is not nil, the extraction strategies (schema.DefaultStrategies unless overridden
// with WithExtractionStrategies) locate the object to validate, and a response that doesn't
// match the schema fails with KindValidation listing every violated field. Such a failure is never retried.
func Call[T any](
	ctx context.Context, c *Client, method, path string, payload interface{}, sch *schema.Schema, opts ...CallOption,
) (T, error) {
	var out T
	resp, err := c.Do(ctx, Request{Method: method, Path: path, Payload: payload}, opts...)
	if err != nil {
		return out, err
	}
	if err = decodeResponse(resp, sch, c.makeCallOptions(opts).strategies, &out); err != nil {
		return out, err
	}
	return out, nil
}

func decodeResponse(resp *Response, sch *schema.Schema, strategies []schema.ExtractionStrategy, out interface{}) error {
	validationErr := func(msg string, cause error) *Error {
		return &Error{Kind: KindValidation, Message: msg, Attempts: resp.Attempts,
			RequestID: resp.RequestID, StatusCode: resp.StatusCode, Cause: cause}
	}

	if sch == nil {
		if len(resp.Body) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return validationErr("decode response", err)
		}
		return nil
	}

	var body interface{}
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return validationErr("response is not valid JSON", err)
		}
	}
	obj, err := schema.Extract(sch, body, strategies...)
	if err != nil {
		return validationErr("response doesn't match schema", err)
	}
	if err = schema.Decode(obj, out); err != nil {
		return validationErr(fmt.Sprintf("decode response into %T", out), err)
	}
	return nil
}
