package body

// Data is the value a consumed body resolves to. Exactly one variant is
// produced per decode; JSException only ever reaches a Sink as a rejection.
type Data interface {
	// Kind reports the representation kind of the variant. JSException
	// reports KindJSON, the only kind able to raise one.
	Kind() Kind
	isData()
}

// Text is a body decoded as UTF-8 text.
type Text string

// JSONValue holds the runtime value produced by parsing a body as JSON.
type JSONValue struct {
	Value any
}

// ArrayBuffer holds the runtime buffer handle allocated for a body.
type ArrayBuffer struct {
	Handle any
}

// JSException carries the exception the runtime raised while parsing.
type JSException struct {
	Value any
}

func (Text) Kind() Kind        { return KindText }
func (JSONValue) Kind() Kind   { return KindJSON }
func (*Blob) Kind() Kind       { return KindBlob }
func (*FormData) Kind() Kind   { return KindFormData }
func (ArrayBuffer) Kind() Kind { return KindArrayBuffer }
func (JSException) Kind() Kind { return KindJSON }

func (Text) isData()        {}
func (JSONValue) isData()   {}
func (*Blob) isData()       {}
func (*FormData) isData()   {}
func (ArrayBuffer) isData() {}
func (JSException) isData() {}
