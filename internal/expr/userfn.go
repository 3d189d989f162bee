package expr

import (
	"fmt"
	"strings"

	"rem/internal/errs"
)

// UserFunc is a user-defined function bound with FSET. Arity is fixed at
// definition; argument references in the body were resolved to indices when
// the body was parsed.
type UserFunc struct {
	Name      string
	Args      []string
	Body      *Node
	IsConst   bool
	File      string
	Line      int
	recursing bool
	pushed    bool
}

// TreeIsConst reports whether evaluating a tree can never read non-constant
// state: no variable reads, no non-constant builtins, and only calls to
// already-defined constant functions. Used to mark FSET definitions.
func TreeIsConst(n *Node, fs *FuncStore) bool {
	switch n.Kind {
	case KindVarRef, KindSysRef:
		return false
	case KindBuiltinCall:
		if !n.Builtin.Const {
			return false
		}
	case KindUserCall:
		f, ok := fs.Get(n.Name)
		if !ok || !f.IsConst {
			return false
		}
	}
	for _, c := range n.Children {
		if !TreeIsConst(c, fs) {
			return false
		}
	}
	return true
}

// FuncStore holds user-defined functions, case-insensitively, in a namespace
// independent of variables. PushAll/PopAll implement PUSH-FUNCS/POP-FUNCS.
type FuncStore struct {
	funcs map[string]*UserFunc
	stack []map[string]*UserFunc
}

func NewFuncStore() *FuncStore {
	return &FuncStore{funcs: make(map[string]*UserFunc)}
}

// Set defines or redefines a function. Redefining a builtin is rejected.
func (fs *FuncStore) Set(f *UserFunc) error {
	key := strings.ToLower(f.Name)
	if LookupBuiltin(key) != nil {
		return fmt.Errorf("%w: %s is a built-in function", errs.ErrBadID, f.Name)
	}
	fs.funcs[key] = f
	return nil
}

// Get looks up a function by name.
func (fs *FuncStore) Get(name string) (*UserFunc, bool) {
	f, ok := fs.funcs[strings.ToLower(name)]
	return f, ok
}

// Unset removes a function; it reports whether the name was bound.
func (fs *FuncStore) Unset(name string) bool {
	key := strings.ToLower(name)
	_, ok := fs.funcs[key]
	delete(fs.funcs, key)
	return ok
}

// Rename implements FRENAME.
func (fs *FuncStore) Rename(oldName, newName string) error {
	f, ok := fs.Get(oldName)
	if !ok {
		return fmt.Errorf("%w: %s", errs.ErrUndefFunc, oldName)
	}
	if LookupBuiltin(newName) != nil {
		return fmt.Errorf("%w: %s is a built-in function", errs.ErrBadID, newName)
	}
	delete(fs.funcs, strings.ToLower(oldName))
	f.Name = newName
	fs.funcs[strings.ToLower(newName)] = f
	return nil
}

// Names returns all bound function names.
func (fs *FuncStore) Names() []string {
	out := make([]string, 0, len(fs.funcs))
	for _, f := range fs.funcs {
		out = append(out, f.Name)
	}
	return out
}

// PushAll snapshots the current bindings.
func (fs *FuncStore) PushAll() {
	snap := make(map[string]*UserFunc, len(fs.funcs))
	for k, v := range fs.funcs {
		cp := *v
		cp.pushed = true
		snap[k] = &cp
	}
	fs.stack = append(fs.stack, snap)
}

// PopAll restores the most recent snapshot.
func (fs *FuncStore) PopAll() error {
	if len(fs.stack) == 0 {
		return errs.ErrPopNoPush
	}
	fs.funcs = fs.stack[len(fs.stack)-1]
	fs.stack = fs.stack[:len(fs.stack)-1]
	return nil
}

// UnmatchedPushes reports pending PUSH-FUNCS frames (warned at exit).
func (fs *FuncStore) UnmatchedPushes() int { return len(fs.stack) }
