package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vecMultSrc = `
__kernel void vec_mult(const float* a, const float* b, float* out, int n) {
	int i = get_global_id(0);
	if (i < n) out[i] = a[i] * b[i];
}
`

func TestExtractKernelInterfacesDirections(t *testing.T) {
	ifaces, err := extractKernelInterfaces([]byte(vecMultSrc))
	require.NoError(t, err)
	require.Len(t, ifaces, 1)

	k := ifaces[0]
	assert.Equal(t, "vec_mult", k.Name)
	assert.Equal(t, []ArgDirection{ArgInput, ArgInput, ArgOutput, ArgScalar}, k.Args)
	assert.True(t, k.ImplicitLength)
}

func TestExtractKernelInterfacesMultiple(t *testing.T) {
	src := `
__kernel void zero_arg_kernel() {}

__kernel void vec_add(const float* a, const float* b, float* out, int n) {
	int i = get_global_id(0);
	if (i < n) out[i] = a[i] + b[i];
}
`
	ifaces, err := extractKernelInterfaces([]byte(src))
	require.NoError(t, err)
	require.Len(t, ifaces, 2)

	assert.Equal(t, "zero_arg_kernel", ifaces[0].Name)
	assert.Empty(t, ifaces[0].Args)
	assert.False(t, ifaces[0].ImplicitLength)

	assert.Equal(t, "vec_add", ifaces[1].Name)
	assert.True(t, ifaces[1].ImplicitLength)
}

func TestClassifyParam(t *testing.T) {
	assert.Equal(t, ArgOutput, classifyParam("__global float* out"))
	assert.Equal(t, ArgInput, classifyParam("__global const float* a"))
	assert.Equal(t, ArgScalar, classifyParam("const unsigned int count"))
	assert.Equal(t, ArgScalar, classifyParam("int n"))
}
