package contract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// MarketplacePaymentABI is the input ABI of the forwarding contract.
const MarketplacePaymentABI = `[{"inputs":[{"internalType":"address payable","name":"seller","type":"address"}],"name":"purchase","outputs":[],"stateMutability":"payable","type":"function"},{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"seller","type":"address"},{"indexed":true,"internalType":"address","name":"buyer","type":"address"},{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}],"name":"Purchase","type":"event"}]`

// MarketplacePaymentBin is the creation bytecode. The runtime code dispatches only
// purchase(address): it reverts with Error(string) when msg.value is zero, forwards
// msg.value to the seller with CALL (reverting if that fails) and logs Purchase.
// Any other calldata, including an empty one, reverts without data.
const MarketplacePaymentBin = "0x6100b18061000d6000396000f3" +
	"60003560e01c6325b31a971461001457600080fd5b34610058576308c379a060e01b6000526020600452601d6024527f" +
	"4573206d75737320457468657220676573656e6465742077657264656e000000" +
	"60445260646000fd5b60043573ffffffffffffffffffffffffffffffffffffffff16600080808034855af161008357600080fd5b" +
	"3460005233817f22e3ae3a20c49dce14046235895c7a3ffc0a6a5f3577c370177ad45fa619485d60206000a300"

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(MarketplacePaymentABI))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ABI returns the parsed contract ABI.
func ABI() abi.ABI {
	return parsedABI
}
