package rbac

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrantAndRevokeToggleSingleCell(t *testing.T) {
	var m Matrix
	m.Grant(ModuleSales, ActionDelete)

	assert.True(t, m.Granted(ModuleSales, ActionDelete))
	assert.False(t, m.Granted(ModuleSales, ActionRead), "delete must not imply read")
	assert.False(t, m.Granted(ModuleInventory, ActionDelete))

	m.Revoke(ModuleSales, ActionDelete)
	assert.Equal(t, Matrix{}, m)
}

func TestSetModuleAndFullyGranted(t *testing.T) {
	var m Matrix
	m.SetModule(ModuleStaff, true)
	assert.True(t, m.IsModuleFullyGranted(ModuleStaff))
	assert.False(t, m.IsModuleFullyGranted(ModuleSettings))

	m.Revoke(ModuleStaff, ActionExport)
	assert.False(t, m.IsModuleFullyGranted(ModuleStaff))

	m.SetModule(ModuleStaff, false)
	for _, a := range Actions() {
		assert.False(t, m.Granted(ModuleStaff, a))
	}
}

func TestEffectivePermissionsListsEveryModuleInOrder(t *testing.T) {
	var m Matrix
	m.Grant(ModuleReports, ActionExport)
	m.Grant(ModuleReports, ActionRead)

	rows := m.EffectivePermissions()
	require.Len(t, rows, len(Modules()))
	for i, module := range Modules() {
		assert.Equal(t, module, rows[i].Module)
		assert.NotNil(t, rows[i].Actions)
	}
	assert.Equal(t, []Action{ActionRead, ActionExport}, rows[3].Actions)
	assert.Empty(t, rows[0].Actions)
}

func TestFullMatrix(t *testing.T) {
	m := FullMatrix()
	assert.True(t, m.IsFull())
	assert.Len(t, m.Strings(), len(Modules())*len(Actions()))
	m.Revoke(ModuleDashboard, ActionRead)
	assert.False(t, m.IsFull())
	assert.True(t, FullMatrix().IsFull(), "copies must be independent")
}

func TestUnknownKeysPanic(t *testing.T) {
	var m Matrix
	assert.Panics(t, func() { m.Grant(Module("payroll"), ActionRead) })
	assert.Panics(t, func() { m.Grant(ModuleSales, Action("approve")) })
	assert.Panics(t, func() { _ = m.IsModuleFullyGranted(Module("")) })
}

func TestMatrixJSON(t *testing.T) {
	var m Matrix
	m.SetModule(ModuleInventory, true)
	m.Grant(ModuleDashboard, ActionRead)

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded Matrix
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, m, decoded)

	assert.Error(t, json.Unmarshal([]byte(`{"payroll":["read"]}`), &decoded))
	assert.Error(t, json.Unmarshal([]byte(`{"sales":["approve"]}`), &decoded))
	assert.Equal(t, m, decoded, "failed decode must leave the matrix untouched")
}

func TestStringsUsesModuleDotAction(t *testing.T) {
	var m Matrix
	m.Grant(ModuleSettings, ActionUpdate)
	m.Grant(ModuleDashboard, ActionRead)
	assert.Equal(t, []string{"dashboard.read", "settings.update"}, m.Strings())
}
