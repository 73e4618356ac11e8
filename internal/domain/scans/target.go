package scans

import "fmt"

// TargetKind tags the Target union.
type TargetKind int

const (
	TargetSourceTree TargetKind = iota + 1
	TargetImageReference
	TargetEndpoint
)

func (k TargetKind) String() string {
	switch k {
	case TargetSourceTree:
		return "source-tree"
	case TargetImageReference:
		return "image-reference"
	case TargetEndpoint:
		return "endpoint"
	}
	return "invalid"
}

// Target is what an adapter inspects: a source tree, a built image or a live endpoint.
// The zero value is invalid and is rejected by every adapter.
type Target struct {
	kind  TargetKind
	value string
}

func SourceTree(path string) Target    { return Target{kind: TargetSourceTree, value: path} }
func ImageReference(ref string) Target { return Target{kind: TargetImageReference, value: ref} }
func Endpoint(url string) Target       { return Target{kind: TargetEndpoint, value: url} }

func (t Target) Kind() TargetKind { return t.kind }
func (t Target) Value() string    { return t.value }

func (t Target) String() string { return fmt.Sprintf("%s(%s)", t.kind, t.value) }

// Expect returns a WRONG_TARGET error when t is not of kind want.
func (t Target) Expect(want TargetKind) error {
	if t.kind != want || t.value == "" {
		return &Error{
			Kind:    ErrKindWrongTarget,
			Message: fmt.Sprintf("expected %s target, got %s", want, t),
		}
	}
	return nil
}
