package clusterfs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smnsjas/go-livycore/fragments"
	"github.com/smnsjas/go-livycore/protocol"
)

var (
	// ErrUnsupportedKind is returned for session kinds that have no write template.
	ErrUnsupportedKind = errors.New("unsupported session kind for cluster writes")
	// ErrInvalidPath is returned for destination paths a template cannot express.
	ErrInvalidPath = errors.New("invalid cluster file path")
)

// Template renders the statement that writes one fragment to path. The first
// fragment creates (or overwrites) the file, the others append to it.
type Template func(path string, frag *fragments.Fragment) string

// TemplateFor returns the write template for a session kind.
func TemplateFor(kind protocol.Kind) (Template, error) {
	switch kind {
	case protocol.KindSpark, "":
		return ScalaTemplate, nil
	case protocol.KindPySpark:
		return PySparkTemplate, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
}

// ScalaTemplate writes through the Hadoop FileSystem API from a Scala session.
func ScalaTemplate(path string, frag *fragments.Fragment) string {
	return fmt.Sprintf(`{
  import org.apache.hadoop.fs.Path
  val path = new Path("%s")
  val fs = path.getFileSystem(sc.hadoopConfiguration)
  val out = if (%t) fs.create(path, true) else fs.append(path)
  try out.write(java.util.Base64.getDecoder.decode("%s")) finally out.close()
}`, quote(path), frag.Start, frag.Encode())
}

// PySparkTemplate writes through the Hadoop FileSystem API via the JVM gateway of a
// PySpark session.
func PySparkTemplate(path string, frag *fragments.Fragment) string {
	create := "False"
	if frag.Start {
		create = "True"
	}
	return fmt.Sprintf(`import base64 as _b64
_path = sc._jvm.org.apache.hadoop.fs.Path("%s")
_fs = _path.getFileSystem(sc._jsc.hadoopConfiguration())
_out = _fs.create(_path, True) if %s else _fs.append(_path)
try:
    _out.write(bytearray(_b64.b64decode("%s")))
finally:
    _out.close()`, quote(path), create, frag.Encode())
}

// quote escapes s for a double-quoted literal that both the JVM languages and
// Python accept. Paths reaching a template never hold control characters; see
// validPath.
func quote(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// validPath rejects paths that cannot be written as a string literal in every
// template. Scala translates unicode escapes before lexing, so control characters
// have no safe escaped form.
func validPath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for i, r := range path {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: control character %U at offset %d", ErrInvalidPath, r, i)
		}
	}
	return nil
}
