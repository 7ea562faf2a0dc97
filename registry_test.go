package ormlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unregisteredRecord struct{}

func TestDescriptorForFailsWithoutRegistration(t *testing.T) {
	t.Parallel()

	_, err := descriptorFor[unregisteredRecord]()
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrInvalidArgument))
}

func TestRegisterTypeValidatesBeforeStoring(t *testing.T) {
	t.Parallel()

	type badRecord struct{}

	bad := &TableDescriptor{TableName: "bad", Columns: []ColumnDescriptor{{Name: "a"}}}
	err := RegisterType[badRecord](bad)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrSchemaError))

	_, err = descriptorFor[badRecord]()
	require.Error(t, err)
}

func TestRegisteredTablesIncludesWidgets(t *testing.T) {
	t.Parallel()

	require.NoError(t, RegisterType[widget](widgetDescriptor()))

	assert.Contains(t, RegisteredTables(), "widgets")
}
