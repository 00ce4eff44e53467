// Copyright 2025 James Ross
package policy

import (
	"encoding/json"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/incontrol/trust-kernel/internal/kernelerrors"
)

// LoadDocument reads a policy document from path, tolerating a JSONC
// dialect: "//" line comments and trailing commas before a closing brace
// or bracket. encoding/json already matches object keys
// case-insensitively when no exact match is found, satisfying the
// case-insensitive property name requirement without extra work.
func LoadDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDocument(raw)
}

// ParseDocument decodes raw policy-document JSONC into a Document.
func ParseDocument(raw []byte) (*Document, error) {
	clean := StripJSONC(raw)
	var doc Document
	if err := json.Unmarshal(clean, &doc); err != nil {
		return nil, kernelerrors.NewValidationError("PolicyDocumentMalformed", "policy document could not be decoded", err.Error())
	}
	if err := ValidateDocument(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// StripJSONC removes "//" line comments and trailing commas from raw JSON
// text, leaving standard JSON an encoding/json.Unmarshal can parse. It is
// a single forward scan that tracks string-literal state so it never
// strips a "//" or "," that appears inside a quoted value.
func StripJSONC(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	inString := false
	escaped := false

	for i := 0; i < len(raw); i++ {
		c := raw[i]

		if inString {
			out = append(out, c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}

		if c == '/' && i+1 < len(raw) && raw[i+1] == '/' {
			for i < len(raw) && raw[i] != '\n' {
				i++
			}
			if i < len(raw) {
				out = append(out, '\n')
			}
			continue
		}

		if c == ',' {
			j := i + 1
			for j < len(raw) && isJSONSpace(raw[j]) {
				j++
			}
			if j < len(raw) && (raw[j] == '}' || raw[j] == ']') {
				continue
			}
		}

		out = append(out, c)
	}
	return out
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// LoadDocumentYAML reads a policy document authored in YAML, the
// secondary encoding operators may use in place of JSONC.
func LoadDocumentYAML(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDocumentYAML(raw)
}

// ParseDocumentYAML decodes raw YAML policy-document text into a Document.
func ParseDocumentYAML(raw []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, kernelerrors.NewValidationError("PolicyDocumentMalformed", "policy document YAML could not be decoded", err.Error())
	}
	if err := ValidateDocument(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
