package rbac

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Module is a back-office area that permissions are granted on.
type Module string

// Action is an operation that can be granted on a module.
type Action string

// Modules of the back-office. The set is closed.
const (
	ModuleDashboard Module = "dashboard"
	ModuleInventory Module = "inventory"
	ModuleSales     Module = "sales"
	ModuleReports   Module = "reports"
	ModuleStaff     Module = "staff"
	ModuleMarketing Module = "marketing"
	ModuleSettings  Module = "settings"
)

// Actions that can be granted per module. The set is closed and no action
// implies another.
const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
)

var moduleOrder = [...]Module{
	ModuleDashboard,
	ModuleInventory,
	ModuleSales,
	ModuleReports,
	ModuleStaff,
	ModuleMarketing,
	ModuleSettings,
}

var actionOrder = [...]Action{
	ActionRead,
	ActionCreate,
	ActionUpdate,
	ActionDelete,
	ActionExport,
}

const allActions actionSet = 1<<len(actionOrder) - 1

type actionSet uint8

// Modules returns every module in display order.
func Modules() []Module {
	out := make([]Module, len(moduleOrder))
	copy(out, moduleOrder[:])
	return out
}

// Actions returns every action in display order.
func Actions() []Action {
	out := make([]Action, len(actionOrder))
	copy(out, actionOrder[:])
	return out
}

// ParseModule resolves a module key.
func ParseModule(raw string) (Module, bool) {
	m := Module(strings.ToLower(strings.TrimSpace(raw)))
	return m, moduleIndex(m) >= 0
}

// ParseAction resolves an action key.
func ParseAction(raw string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	return a, actionIndex(a) >= 0
}

// Permission renders the "module.action" string used by route guards.
func Permission(m Module, a Action) string {
	return string(m) + "." + string(a)
}

// Matrix is the module × action grant table owned by a role. The zero value
// grants nothing. Matrix is a value type; copies are independent.
//
// Passing a module or action outside the closed sets panics: callers are
// expected to parse external input with ParseModule/ParseAction first.
type Matrix struct {
	cells [len(moduleOrder)]actionSet
}

// ModulePermissions is one row of an effective permission projection.
type ModulePermissions struct {
	Module  Module   `json:"module"`
	Actions []Action `json:"actions"`
}

// FullMatrix returns a matrix with every action granted on every module.
func FullMatrix() Matrix {
	var m Matrix
	for i := range m.cells {
		m.cells[i] = allActions
	}
	return m
}

// Grant sets a single cell.
func (m *Matrix) Grant(module Module, action Action) {
	m.cells[mustModule(module)] |= 1 << mustAction(action)
}

// Revoke clears a single cell.
func (m *Matrix) Revoke(module Module, action Action) {
	m.cells[mustModule(module)] &^= 1 << mustAction(action)
}

// SetModule grants or clears every action of a module in one step.
func (m *Matrix) SetModule(module Module, allGranted bool) {
	idx := mustModule(module)
	if allGranted {
		m.cells[idx] = allActions
		return
	}
	m.cells[idx] = 0
}

// Granted reports whether a single cell is set.
func (m Matrix) Granted(module Module, action Action) bool {
	return m.cells[mustModule(module)]&(1<<mustAction(action)) != 0
}

// IsModuleFullyGranted reports whether every action of a module is granted.
func (m Matrix) IsModuleFullyGranted(module Module) bool {
	return m.cells[mustModule(module)] == allActions
}

// IsFull reports whether every cell is granted.
func (m Matrix) IsFull() bool {
	return m == FullMatrix()
}

// EffectivePermissions lists every module in display order with its granted
// actions. Modules without grants are kept with an empty, non-nil slice.
func (m Matrix) EffectivePermissions() []ModulePermissions {
	out := make([]ModulePermissions, 0, len(moduleOrder))
	for i, module := range moduleOrder {
		actions := make([]Action, 0, len(actionOrder))
		for j, action := range actionOrder {
			if m.cells[i]&(1<<j) != 0 {
				actions = append(actions, action)
			}
		}
		out = append(out, ModulePermissions{Module: module, Actions: actions})
	}
	return out
}

// Strings flattens the matrix into sorted "module.action" permission names.
func (m Matrix) Strings() []string {
	var perms []string
	for _, row := range m.EffectivePermissions() {
		for _, action := range row.Actions {
			perms = append(perms, Permission(row.Module, action))
		}
	}
	sort.Strings(perms)
	return perms
}

// MarshalJSON encodes the matrix as {module: [actions...]} covering every module.
func (m Matrix) MarshalJSON() ([]byte, error) {
	out := make(map[string][]Action, len(moduleOrder))
	for _, row := range m.EffectivePermissions() {
		out[string(row.Module)] = row.Actions
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes {module: [actions...]}. Unknown keys are rejected so
// untrusted payloads never reach the panicking accessors.
func (m *Matrix) UnmarshalJSON(data []byte) error {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("rbac: decode matrix: %w", err)
	}
	var decoded Matrix
	for rawModule, rawActions := range raw {
		module, ok := ParseModule(rawModule)
		if !ok {
			return fmt.Errorf("rbac: unknown module %q", rawModule)
		}
		for _, rawAction := range rawActions {
			action, ok := ParseAction(rawAction)
			if !ok {
				return fmt.Errorf("rbac: unknown action %q on module %s", rawAction, module)
			}
			decoded.Grant(module, action)
		}
	}
	*m = decoded
	return nil
}

func moduleIndex(m Module) int {
	for i, candidate := range moduleOrder {
		if candidate == m {
			return i
		}
	}
	return -1
}

func actionIndex(a Action) int {
	for i, candidate := range actionOrder {
		if candidate == a {
			return i
		}
	}
	return -1
}

func mustModule(m Module) int {
	idx := moduleIndex(m)
	if idx < 0 {
		panic(fmt.Sprintf("rbac: unknown module %q", string(m)))
	}
	return idx
}

func mustAction(a Action) int {
	idx := actionIndex(a)
	if idx < 0 {
		panic(fmt.Sprintf("rbac: unknown action %q", string(a)))
	}
	return idx
}
