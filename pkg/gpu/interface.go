package gpu

import (
	"regexp"
	"strings"
)

// ArgDirection classifies one kernel parameter.
type ArgDirection int

const (
	ArgInput ArgDirection = iota
	ArgOutput
	ArgScalar
)

func (d ArgDirection) String() string {
	switch d {
	case ArgOutput:
		return "output"
	case ArgScalar:
		return "scalar"
	default:
		return "input"
	}
}

// KernelInterface is one kernel's signature, as discovered by a lexical
// scan of its source declaration.
type KernelInterface struct {
	Name       string
	Args       []ArgDirection
	// ImplicitLength is true when the kernel's last parameter is a
	// scalar, the slot the dispatch engine's synthetic trailing length
	// (appended when an invocation has no explicit length marker) fills
	// (design notes §9). The signature check does not read this field;
	// the appended scalar is checked against Args like any other
	// argument.
	ImplicitLength bool
}

// kernelDeclPattern matches "kernel void <name> ( <params> )" — the
// convention __kernel (or kernel) void declarations follow across every
// kernel source in the pack (eriklupander's multiply2, nornicdb's
// cosine_similarity, HexHunter's vanity kernels). This is a deliberately
// lightweight lexical scan, not a full C parser: it fails silently on
// exotic declarations (attributes, macros, line continuations).
var kernelDeclPattern = regexp.MustCompile(`(?s)(?:__)?kernel\s+void\s+(\w+)\s*\(([^)]*)\)`)

// extractKernelInterfaces scans kernel source text and returns one
// KernelInterface per recognized "kernel void" declaration, in source
// order.
func extractKernelInterfaces(source []byte) ([]KernelInterface, error) {
	matches := kernelDeclPattern.FindAllSubmatch(source, -1)
	out := make([]KernelInterface, 0, len(matches))
	for _, m := range matches {
		name := string(m[1])
		params := splitParams(string(m[2]))

		iface := KernelInterface{Name: name}
		for _, p := range params {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			iface.Args = append(iface.Args, classifyParam(p))
		}
		if n := len(iface.Args); n > 0 && iface.Args[n-1] == ArgScalar {
			iface.ImplicitLength = true
		}
		out = append(out, iface)
	}
	return out, nil
}

// splitParams splits a parameter list on top-level commas. OpenCL
// kernel parameters never nest parens/brackets in the pack's kernel
// sources, so a plain comma split is sufficient for this lightweight
// scan.
func splitParams(params string) []string {
	if strings.TrimSpace(params) == "" {
		return nil
	}
	return strings.Split(params, ",")
}

// classifyParam applies the direction rule from spec §4.5: a pointer
// ("*") parameter not qualified const is an output; a pointer qualified
// const is an input; anything else is a scalar.
func classifyParam(param string) ArgDirection {
	isPointer := strings.Contains(param, "*")
	isConst := strings.Contains(param, "const")
	switch {
	case isPointer && !isConst:
		return ArgOutput
	case isPointer && isConst:
		return ArgInput
	default:
		return ArgScalar
	}
}
