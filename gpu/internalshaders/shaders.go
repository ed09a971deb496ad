// Package internalshaders embeds the tiny WGSL helper shaders the gpu
// package itself needs (the mip-blit fullscreen triangle), as opposed
// to the precompiled bytecode blobs ShaderLoader reads for
// pipeline-owning subsystems.
package internalshaders

import _ "embed"

//go:embed mipblit.wgsl
var MipBlitWGSL string
