// Package schema declares Node types in YAML type tables.
//
// A table lists the Node types of a document family and the format version they produce:
//
//	version: 2
//	types:
//	  - id: Box
//	    params:
//	      - name: general
//	        kind: group
//	      - name: width
//	        kind: real
//	        expressible: true
//	        default: 1.0
//	      - name: label
//	        kind: string
//
// Parameters are indexed in declaration order. Parse decodes and validates a table, Apply
// registers its types, and FromRegistry writes the table back out. Raw values decoded from
// YAML or JSON are turned into typed values with Coerce and checked in bulk with
// ValidateValues:
//
//	values, err := schema.ValidateValues(boxType, map[string]any{
//	    "width": 2,
//	    "label": "lid",
//	})
package schema
