package parser

// SymbolKind represents the type of code symbol
type SymbolKind int

const (
	SymbolFunction SymbolKind = iota
	SymbolMethod
	SymbolClass
	SymbolStruct
	SymbolInterface
	SymbolModule
	SymbolConstant
	SymbolVariable
	SymbolSection
	SymbolRule
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolFunction:
		return "func"
	case SymbolMethod:
		return "method"
	case SymbolClass:
		return "class"
	case SymbolStruct:
		return "struct"
	case SymbolInterface:
		return "interface"
	case SymbolModule:
		return "module"
	case SymbolConstant:
		return "const"
	case SymbolVariable:
		return "var"
	case SymbolSection:
		return "section"
	case SymbolRule:
		return "rule"
	default:
		return "unknown"
	}
}

// IsCallable reports whether the symbol has a body that a skeleton may elide.
func (k SymbolKind) IsCallable() bool {
	return k == SymbolFunction || k == SymbolMethod
}

// IsContainer reports whether the symbol groups other symbols (classes, modules).
func (k SymbolKind) IsContainer() bool {
	return k == SymbolClass || k == SymbolModule
}

// CallSite captures a function/method invocation discovered inside a symbol body.
type CallSite struct {
	Name      string `json:"name"`
	Qualifier string `json:"qualifier,omitempty"`
	Receiver  string `json:"receiver,omitempty"`
	Arity     int    `json:"arity,omitempty"`
	Line      int    `json:"line,omitempty"`
	Raw       string `json:"raw,omitempty"`
}

// Symbol represents a code symbol (function, class, etc.)
type Symbol struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Kind      SymbolKind `json:"kind"`
	Parent    string     `json:"parent,omitempty"` // enclosing class/module name
	Signature string     `json:"signature,omitempty"`
	Line      int        `json:"line"`
	EndLine   int        `json:"end_line"`
	Doc       string     `json:"doc,omitempty"`
	Calls     []CallSite `json:"calls,omitempty"`
}

// QualifiedName returns Parent.Name when the symbol is nested.
func (s Symbol) QualifiedName() string {
	if s.Parent == "" {
		return s.Name
	}
	return s.Parent + "." + s.Name
}

// Facts holds the structural facts extracted from a single file.
type Facts struct {
	Language      string            `json:"language"`
	Family        FamilyKind        `json:"family"`
	Symbols       []Symbol          `json:"symbols,omitempty"` // flat, source order
	Imports       []string          `json:"imports,omitempty"`
	ImportAliases map[string]string `json:"import_aliases,omitempty"` // alias -> import target (module, optionally module#symbol)
	References    []string          `json:"references,omitempty"`     // distinct called names
	Complexity    int               `json:"complexity"`               // cyclomatic, 1 + decision points
	Lines         int               `json:"lines"`
	Doc           string            `json:"doc,omitempty"` // leading file comment, first line
}

// FunctionCount returns the number of function and method symbols.
func (f *Facts) FunctionCount() int {
	if f == nil {
		return 0
	}
	n := 0
	for _, sym := range f.Symbols {
		if sym.Kind.IsCallable() {
			n++
		}
	}
	return n
}

// ClassCount returns the number of type-like symbols.
func (f *Facts) ClassCount() int {
	if f == nil {
		return 0
	}
	n := 0
	for _, sym := range f.Symbols {
		switch sym.Kind {
		case SymbolClass, SymbolStruct, SymbolInterface, SymbolModule:
			n++
		}
	}
	return n
}

// HasStructure reports whether any symbol was extracted.
func (f *Facts) HasStructure() bool {
	return f != nil && len(f.Symbols) > 0
}

// SymbolNames returns every plain and qualified symbol name in source order.
func (f *Facts) SymbolNames() []string {
	if f == nil {
		return nil
	}
	names := make([]string, 0, len(f.Symbols))
	for _, sym := range f.Symbols {
		names = append(names, sym.Name)
		if sym.Parent != "" {
			names = append(names, sym.QualifiedName())
		}
	}
	return names
}
