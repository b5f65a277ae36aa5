package keyset_test

import (
	"fmt"

	"github.com/skeinworks/skein/pkg/keyset"
)

func ExampleMap() {
	m := keyset.New[string](nil)

	// Order and duplication of keys are irrelevant.
	*m.Lookup("read", "write") = "rw"
	fmt.Println(*m.Lookup("write", "read", "read"))

	// A different set is a different entry.
	fmt.Println(*m.Lookup("read") == "rw")
	// Output:
	// rw
	// false
}
