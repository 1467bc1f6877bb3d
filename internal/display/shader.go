package display

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
)

// imageUniform is the sampler the fragment stage reads the image from.
const imageUniform = "uImage"

const quadVertexSource = `
#version 410 core

layout (location = 0) in vec2 aPos;
layout (location = 1) in vec2 aUV;

out vec2 uv;

void main() {
	gl_Position = vec4(aPos, 0.0, 1.0);
	uv = aUV;
}
`

const quadFragmentSource = `
#version 410 core

in vec2 uv;
out vec4 FragColor;

uniform sampler2D ` + imageUniform + `;

void main() {
	FragColor = texture(` + imageUniform + `, uv);
}
`

// quadStride is the number of floats per vertex: position (x, y) + uv.
const quadStride = 4

// Full screen quad as two triangles. The v axis is flipped since image rows
// run top to bottom.
var quadVertices = []float32{
	-1, 1, 0, 0,
	-1, -1, 0, 1,
	1, -1, 1, 1,
	-1, 1, 0, 0,
	1, -1, 1, 1,
	1, 1, 1, 0,
}

// quadProgram draws one texture over the current viewport.
type quadProgram struct {
	program  uint32
	vao      uint32
	vbo      uint32
	imageLoc int32
}

func newQuadProgram() (*quadProgram, error) {
	q := &quadProgram{}
	var stages [2]uint32
	for i, s := range []struct {
		kind   uint32
		name   string
		source string
	}{
		{gl.VERTEX_SHADER, "vertex", quadVertexSource},
		{gl.FRAGMENT_SHADER, "fragment", quadFragmentSource},
	} {
		id, err := compileStage(s.kind, s.source)
		if err != nil {
			for _, prev := range stages[:i] {
				gl.DeleteShader(prev)
			}
			return nil, fmt.Errorf("%s shader: %w", s.name, err)
		}
		stages[i] = id
	}

	q.program = gl.CreateProgram()
	for _, id := range stages {
		gl.AttachShader(q.program, id)
	}
	gl.LinkProgram(q.program)
	for _, id := range stages {
		gl.DetachShader(q.program, id)
		gl.DeleteShader(id)
	}

	var status int32
	gl.GetProgramiv(q.program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetProgramiv(q.program, gl.INFO_LOG_LENGTH, &n)
		msg := infoLog(n, func(buf *uint8) { gl.GetProgramInfoLog(q.program, n, nil, buf) })
		q.delete()
		return nil, fmt.Errorf("link: %s", msg)
	}

	q.imageLoc = gl.GetUniformLocation(q.program, gl.Str(imageUniform+"\x00"))
	if q.imageLoc < 0 {
		q.delete()
		return nil, fmt.Errorf("uniform %s is not active", imageUniform)
	}
	q.upload()
	return q, nil
}

func compileStage(kind uint32, source string) (uint32, error) {
	id := gl.CreateShader(kind)
	csource, free := gl.Strs(source + "\x00")
	gl.ShaderSource(id, 1, csource, nil)
	free()
	gl.CompileShader(id)

	var status int32
	gl.GetShaderiv(id, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetShaderiv(id, gl.INFO_LOG_LENGTH, &n)
		msg := infoLog(n, func(buf *uint8) { gl.GetShaderInfoLog(id, n, nil, buf) })
		gl.DeleteShader(id)
		return 0, fmt.Errorf("compile: %s", msg)
	}
	return id, nil
}

// infoLog reads an n byte GL info log through read.
func infoLog(n int32, read func(*uint8)) string {
	if n <= 0 {
		return "no info log"
	}
	buf := make([]uint8, n)
	read(&buf[0])
	return gl.GoStr(&buf[0])
}

// upload creates the vertex array for the quad.
func (q *quadProgram) upload() {
	gl.GenVertexArrays(1, &q.vao)
	gl.BindVertexArray(q.vao)

	gl.GenBuffers(1, &q.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, q.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(quadVertices)*4, unsafe.Pointer(&quadVertices[0]), gl.STATIC_DRAW)

	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, quadStride*4, nil)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(1, 2, gl.FLOAT, false, quadStride*4, unsafe.Pointer(uintptr(2*4)))
	gl.EnableVertexAttribArray(1)

	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)
}

// draw renders texture over the current viewport.
func (q *quadProgram) draw(texture uint32) {
	gl.UseProgram(q.program)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, texture)
	gl.Uniform1i(q.imageLoc, 0)
	gl.BindVertexArray(q.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, int32(len(quadVertices)/quadStride))
	gl.BindVertexArray(0)
}

func (q *quadProgram) delete() {
	if q.vao != 0 {
		gl.DeleteVertexArrays(1, &q.vao)
		q.vao = 0
	}
	if q.vbo != 0 {
		gl.DeleteBuffers(1, &q.vbo)
		q.vbo = 0
	}
	if q.program != 0 {
		gl.DeleteProgram(q.program)
		q.program = 0
	}
}
