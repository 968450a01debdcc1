/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package schema

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode copies a validated object into out (a pointer), matching fields by their json tags.
func Decode(obj map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("new decoder: %w", err)
	}
	if err = dec.Decode(obj); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
