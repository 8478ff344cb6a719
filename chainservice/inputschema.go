package chainservice

import (
	"github.com/chainwork/chainwork/chaintypes"
	"github.com/getkin/kin-openapi/openapi3"
)

// InputSchema describes a chain's declared input fields as an OpenAPI object
// schema, so clients can render forms or validate requests without knowing
// the field model.
func InputSchema(chain *chaintypes.ChainDefinition) *openapi3.Schema {
	schema := openapi3.NewObjectSchema()
	schema.Title = chain.Name
	schema.Description = chain.Description

	for _, field := range chain.InputFields {
		prop := fieldSchema(field)
		schema.WithProperty(field.Name, prop)
		schema.Required = append(schema.Required, field.Name)
	}

	return schema
}

func fieldSchema(field chaintypes.InputFieldDefinition) *openapi3.Schema {
	var prop *openapi3.Schema
	switch field.Type {
	case chaintypes.FieldTypeString:
		prop = openapi3.NewStringSchema()
	case chaintypes.FieldTypeNumber:
		prop = openapi3.NewFloat64Schema()
	case chaintypes.FieldTypeBoolean:
		prop = openapi3.NewBoolSchema()
	case chaintypes.FieldTypeList:
		prop = openapi3.NewArraySchema()
	case chaintypes.FieldTypeObject:
		prop = openapi3.NewObjectSchema()
	default:
		prop = openapi3.NewSchema()
	}

	for _, option := range field.Options {
		prop.Enum = append(prop.Enum, option)
	}

	return prop
}
