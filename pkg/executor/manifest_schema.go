package executor

// ManifestSchema is the JSON Schema every action manifest must satisfy.
const ManifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["actions"],
  "additionalProperties": false,
  "properties": {
    "min_server_version": {
      "type": "string",
      "minLength": 1,
      "description": "Semver constraint the server protocol version must satisfy"
    },
    "actions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "additionalProperties": false,
        "properties": {
          "name": {
            "type": "string",
            "pattern": "^[A-Za-z0-9_.-]+$"
          },
          "kind": {
            "type": "string",
            "enum": ["respond", "plugin"]
          },
          "required_slots": {
            "type": "array",
            "items": { "type": "string", "minLength": 1 }
          },
          "responses": {
            "type": "array",
            "items": { "type": "object" }
          },
          "events": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["event"],
              "properties": {
                "event": { "type": "string", "minLength": 1 }
              }
            }
          },
          "command": {
            "type": "string",
            "minLength": 1,
            "description": "Plugin executable, relative to the manifest directory"
          },
          "args": {
            "type": "array",
            "items": { "type": "string" }
          }
        },
        "if": {
          "properties": { "kind": { "const": "plugin" } },
          "required": ["kind"]
        },
        "then": { "required": ["command"] }
      }
    }
  }
}`
