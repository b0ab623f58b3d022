package tokens

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// erc20Getters are the no-argument metadata views of an ERC20 token.
// Symbol32 and Name32 share the selectors of Symbol and Name and decode the
// bytes32 results some early tokens return.
type erc20Getters struct {
	Decimals abi.Method
	Symbol   abi.Method
	Name     abi.Method
	Symbol32 abi.Method
	Name32   abi.Method
}

var loadGetters = sync.OnceValues(func() (erc20Getters, error) {
	types := map[string]abi.Type{}
	for _, name := range []string{"uint8", "string", "bytes32"} {
		typ, err := abi.NewType(name, "", nil)
		if err != nil {
			return erc20Getters{}, fmt.Errorf("abi type %s: %w", name, err)
		}
		types[name] = typ
	}
	return erc20Getters{
		Decimals: viewMethod("decimals", types["uint8"]),
		Symbol:   viewMethod("symbol", types["string"]),
		Name:     viewMethod("name", types["string"]),
		Symbol32: viewMethod("symbol", types["bytes32"]),
		Name32:   viewMethod("name", types["bytes32"]),
	}, nil
})

func viewMethod(name string, out abi.Type) abi.Method {
	return abi.NewMethod(name, name, abi.Function, "view", true, false, nil, abi.Arguments{{Type: out}})
}
