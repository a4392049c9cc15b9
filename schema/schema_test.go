package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testDocument = `
openapi: 3.1.0
components:
  schemas:
    User:
      type: object
      required: [id]
      properties:
        id:
          type: string
          format: uuid
        email:
          type: string
          format: email
        age:
          type: integer
        tags:
          type: array
          items:
            type: string
    Node:
      type: object
      properties:
        name:
          type: string
        next:
          $ref: '#/components/schemas/Node'
    Audited:
      type: object
      properties:
        createdAt:
          type: string
          format: date-time
        id:
          type: integer
    Account:
      type: object
      properties:
        id:
          type: string
          format: uuid
        email:
          type: string
          format: email
      allOf:
        - $ref: '#/components/schemas/Audited'
    Status:
      type: string
      enum: [active, disabled]
    a/b:
      type: boolean
    tilde~name:
      type: number
`

func parseDocument(t *testing.T, src string) *yaml.Node {
	t.Helper()

	var root yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &root))

	return &root
}

func parseSchema(t *testing.T, src string) *Node {
	t.Helper()

	n := Parse(parseDocument(t, src))
	require.NotNil(t, n)

	return n
}
