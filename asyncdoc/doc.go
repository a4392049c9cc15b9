// Package asyncdoc loads Socket.IO event documentation: servers and
// namespaces, each with its events, their direction and payload schemas,
// and the security schemes the namespace handshake expects.
//
//	servers:
//	  - url: https://chat.example.com
//	namespaces:
//	  /chat:
//	    auth:
//	      - type: http
//	        scheme: bearer
//	    events:
//	      message:
//	        direction: bidirectional
//	        requestSchema:
//	          $ref: '#/components/schemas/Message'
//
// Payload schemas are normalized with the schema package and references
// resolve against the same document.
package asyncdoc
