package openapi

const petstore = `
openapi: 3.0.3
info:
  title: Pet Store
  version: 1.0.0
servers:
  - url: https://api.example.com/v1/
    description: production
  - url: http://localhost:8080
security:
  - bearerAuth: []
paths:
  /pets:
    get:
      summary: List pets
      operationId: listPets
      tags: [pets]
      security: []
      parameters:
        - $ref: '#/components/parameters/Limit'
        - name: q
          in: query
          schema:
            type: string
      responses:
        '200':
          description: A list of pets
          content:
            application/json:
              schema:
                type: array
                items:
                  $ref: '#/components/schemas/Pet'
    post:
      summary: Create a pet
      requestBody:
        required: true
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/NewPet'
          application/x-www-form-urlencoded:
            schema:
              $ref: '#/components/schemas/NewPet'
      responses:
        '201':
          $ref: '#/components/responses/Created'
        default:
          description: Unexpected error
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Error'
  /pets/{petId}:
    parameters:
      - name: petId
        in: path
        required: true
        schema:
          type: string
      - name: X-Trace
        in: header
        schema:
          type: string
    delete:
      summary: Delete a pet
      deprecated: true
      security:
        - apiKey: []
      parameters:
        - name: X-Trace
          in: header
          required: true
          description: overridden
          schema:
            type: string
      responses:
        '204':
          description: Deleted
    get:
      summary: Show a pet
      responses:
        '200':
          description: A pet
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Pet'
components:
  parameters:
    Limit:
      name: limit
      in: query
      example: 20
      schema:
        type: integer
  responses:
    Created:
      description: Created
      content:
        application/json:
          schema:
            $ref: '#/components/schemas/Pet'
  securitySchemes:
    bearerAuth:
      type: http
      scheme: bearer
    apiKey:
      type: apiKey
      in: header
      name: X-API-Key
  schemas:
    Pet:
      type: object
      required: [id, name]
      properties:
        id:
          type: integer
        name:
          type: string
        tag:
          type: string
    NewPet:
      type: object
      properties:
        name:
          type: string
        tag:
          type: string
    Error:
      type: object
      properties:
        code:
          type: integer
        message:
          type: string
`
