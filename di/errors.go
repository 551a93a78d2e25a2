package di

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrorCode 错误分类
type ErrorCode uint16

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeDefinition
	ErrCodeNotFound
	ErrCodeAmbiguousResolution
	ErrCodeUnsatisfiedDependency
	ErrCodeCircularWiring
	ErrCodeCurrentlyInCreation
	ErrCodeCreation
	ErrCodeConversion
	ErrCodeTypeMismatch
	ErrCodeDestruction
)

var codeNames = map[ErrorCode]string{
	ErrCodeUnknown:               "UNKNOWN",
	ErrCodeDefinition:            "DEFINITION",
	ErrCodeNotFound:              "NOT_FOUND",
	ErrCodeAmbiguousResolution:   "AMBIGUOUS_RESOLUTION",
	ErrCodeUnsatisfiedDependency: "UNSATISFIED_DEPENDENCY",
	ErrCodeCircularWiring:        "CIRCULAR_WIRING",
	ErrCodeCurrentlyInCreation:   "CURRENTLY_IN_CREATION",
	ErrCodeCreation:              "CREATION",
	ErrCodeConversion:            "CONVERSION",
	ErrCodeTypeMismatch:          "TYPE_MISMATCH",
	ErrCodeDestruction:           "DESTRUCTION",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", c)
}

// 创建阶段
const (
	PhaseMerge          = "merge"
	PhaseInstantiation  = "instantiation"
	PhasePopulation     = "population"
	PhaseInitialization = "initialization"
	PhaseDestruction    = "destruction"
)

// Error 容器错误
type Error struct {
	Code       ErrorCode
	Component  string
	Phase      string
	Property   string
	Message    string
	Candidates []string
	Dependents []string
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("di: [")
	b.WriteString(e.Code.String())
	b.WriteString("]")

	if e.Component != "" {
		fmt.Fprintf(&b, " component=%q", e.Component)
	}
	if e.Phase != "" {
		fmt.Fprintf(&b, " phase=%s", e.Phase)
	}
	if e.Property != "" {
		fmt.Fprintf(&b, " property=%q", e.Property)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&b, " (candidates: %s)", strings.Join(e.Candidates, ", "))
	}
	if len(e.Dependents) > 0 {
		fmt.Fprintf(&b, " (dependents: %s)", strings.Join(e.Dependents, ", "))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按错误码比较
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// 用于 errors.Is 的哨兵错误
var (
	ErrDefinition            = &Error{Code: ErrCodeDefinition}
	ErrNotFound              = &Error{Code: ErrCodeNotFound}
	ErrAmbiguousResolution   = &Error{Code: ErrCodeAmbiguousResolution}
	ErrUnsatisfiedDependency = &Error{Code: ErrCodeUnsatisfiedDependency}
	ErrCircularWiring        = &Error{Code: ErrCodeCircularWiring}
	ErrCurrentlyInCreation   = &Error{Code: ErrCodeCurrentlyInCreation}
	ErrCreation              = &Error{Code: ErrCodeCreation}
	ErrConversion            = &Error{Code: ErrCodeConversion}
	ErrTypeMismatch          = &Error{Code: ErrCodeTypeMismatch}
	ErrDestruction           = &Error{Code: ErrCodeDestruction}
)

func IsNotFound(err error) bool            { return errors.Is(err, ErrNotFound) }
func IsAmbiguous(err error) bool           { return errors.Is(err, ErrAmbiguousResolution) }
func IsUnsatisfied(err error) bool         { return errors.Is(err, ErrUnsatisfiedDependency) }
func IsCircularWiring(err error) bool      { return errors.Is(err, ErrCircularWiring) }
func IsCurrentlyInCreation(err error) bool { return errors.Is(err, ErrCurrentlyInCreation) }
func IsCreationFailure(err error) bool     { return errors.Is(err, ErrCreation) }
func IsDefinitionError(err error) bool     { return errors.Is(err, ErrDefinition) }
func IsTypeMismatch(err error) bool        { return errors.Is(err, ErrTypeMismatch) }

func definitionError(component, format string, args ...any) *Error {
	return &Error{
		Code:      ErrCodeDefinition,
		Component: component,
		Message:   fmt.Sprintf(format, args...),
	}
}

func notFoundError(name string) *Error {
	return &Error{
		Code:      ErrCodeNotFound,
		Component: name,
		Message:   "no component registered under this name",
	}
}

func noCandidateError(typ reflect.Type) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("no component of type %v available", typ),
	}
}

func ambiguousError(component string, typ reflect.Type, candidates []string) *Error {
	return &Error{
		Code:       ErrCodeAmbiguousResolution,
		Component:  component,
		Message:    fmt.Sprintf("expected a single matching component of type %v but found %d", typ, len(candidates)),
		Candidates: candidates,
	}
}

func unsatisfiedError(component, property string, cause error) *Error {
	return &Error{
		Code:      ErrCodeUnsatisfiedDependency,
		Component: component,
		Property:  property,
		Message:   "unsatisfied dependency",
		Cause:     cause,
	}
}

func circularWiringError(component string, dependents []string) *Error {
	return &Error{
		Code:      ErrCodeCircularWiring,
		Component: component,
		Message: "component has been injected into other components in its raw version as part of a circular reference, " +
			"but has eventually been wrapped; those components do not use the final version",
		Dependents: dependents,
	}
}

func inCreationError(component string) *Error {
	return &Error{
		Code:      ErrCodeCurrentlyInCreation,
		Component: component,
		Message:   "requested component is currently in creation: is there an unresolvable circular reference?",
	}
}

// creationError 包装创建失败；已指向同一组件的创建错误原样返回，避免重复包装
func creationError(component, phase string, cause error) error {
	var e *Error
	if errors.As(cause, &e) && e.Code == ErrCodeCreation && e.Component == component {
		return cause
	}
	return &Error{
		Code:      ErrCodeCreation,
		Component: component,
		Phase:     phase,
		Message:   phase + " of component failed",
		Cause:     cause,
	}
}

func conversionError(value any, target reflect.Type, cause error) *Error {
	return &Error{
		Code:    ErrCodeConversion,
		Message: fmt.Sprintf("cannot convert value of type %T to %v", value, target),
		Cause:   cause,
	}
}

func typeMismatchError(name string, required reflect.Type, actual any) *Error {
	return &Error{
		Code:      ErrCodeTypeMismatch,
		Component: name,
		Message:   fmt.Sprintf("component is of type %T, not assignable to %v", actual, required),
	}
}

func destructionError(component string, cause error) *Error {
	return &Error{
		Code:      ErrCodeDestruction,
		Component: component,
		Phase:     PhaseDestruction,
		Message:   "destruction of component failed",
		Cause:     cause,
	}
}
