// Copyright 2025 James Ross
package manifest

// jsonSchema is the structural schema a manifest document must satisfy
// before the semantic invariants in Validate run. It catches malformed
// documents early with precise $.field pointers.
const jsonSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "version", "name", "author", "description", "risk_level"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "version": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "author": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "risk_level": {"type": "string", "enum": ["read_only", "local_mutation", "network", "system_adjacent"]},
    "permissions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "access"],
        "properties": {
          "type": {"type": "string", "enum": ["file", "memory", "network", "ui", "conversation", "settings"]},
          "access": {"type": "string", "enum": ["read", "write", "execute"]},
          "scope": {"type": "string"},
          "reason": {"type": "string"},
          "optional": {"type": "boolean"}
        }
      }
    },
    "capabilities": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["tool_id", "name", "description"],
        "properties": {
          "tool_id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "description": {"type": "string"},
          "requires_network": {"type": "boolean"},
          "modifies_state": {"type": "boolean"}
        }
      }
    }
  }
}`
