package queue

import (
	"fmt"
	"strings"
)

// qualifiedStructName names a task after its payload type.
func qualifiedStructName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}
