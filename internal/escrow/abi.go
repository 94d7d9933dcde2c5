package escrow

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// MeatboardEscrow合约接口，只保留后端用到的函数和事件片段，
// 不引入完整的编译产物。
const escrowABIJSON = `[
  {"type":"function","name":"createBounty","stateMutability":"nonpayable",
   "inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"metadataURI","type":"string"}],
   "outputs":[{"name":"id","type":"uint256"}]},
  {"type":"function","name":"claimBounty","stateMutability":"nonpayable",
   "inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"submitProof","stateMutability":"nonpayable",
   "inputs":[{"name":"id","type":"uint256"},{"name":"proofURI","type":"string"}],"outputs":[]},
  {"type":"function","name":"releaseBounty","stateMutability":"nonpayable",
   "inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"cancelBounty","stateMutability":"nonpayable",
   "inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"BountyCreated","anonymous":false,
   "inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"agent","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false},{"name":"metadataURI","type":"string","indexed":false},{"name":"deadline","type":"uint256","indexed":false}]},
  {"type":"event","name":"BountyClaimed","anonymous":false,
   "inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"claimer","type":"address","indexed":true}]},
  {"type":"event","name":"BountySubmitted","anonymous":false,
   "inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"proofURI","type":"string","indexed":false}]},
  {"type":"event","name":"BountyPaid","anonymous":false,
   "inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"claimer","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"BountyCancelled","anonymous":false,
   "inputs":[{"name":"id","type":"uint256","indexed":true}]},
  {"type":"event","name":"BountyRejected","anonymous":false,
   "inputs":[{"name":"id","type":"uint256","indexed":true}]},
  {"type":"event","name":"BountyDisputed","anonymous":false,
   "inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"evidenceURI","type":"string","indexed":false}]},
  {"type":"event","name":"BountyDisputeResolved","anonymous":false,
   "inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"claimerWins","type":"bool","indexed":false}]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

var (
	escrowABI = mustParseABI(escrowABIJSON)
	erc20ABI  = mustParseABI(erc20ABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("escrow: invalid embedded ABI: " + err.Error())
	}
	return parsed
}
