package escrow

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// UnsignedTx 未签名的合约调用描述，返回给调用方自行签名广播。
// 构造后不再修改。
type UnsignedTx struct {
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
	ChainID uint64 `json:"chainId"`
}

// Builder 根据已校验的领域值构造未签名交易。
// 所有构造函数都是确定性的：相同输入产生字节一致的calldata。
type Builder struct {
	escrowAddress common.Address
	chainID       uint64
}

// NewBuilder 合约地址缺失或非法时立即报错，
// 绝不生成指向未定义地址的交易。
func NewBuilder(escrowAddress string, chainID uint64) (*Builder, error) {
	if escrowAddress == "" {
		return nil, fmt.Errorf("escrow contract address not configured")
	}
	if !common.IsHexAddress(escrowAddress) {
		return nil, fmt.Errorf("invalid escrow contract address: %s", escrowAddress)
	}
	return &Builder{
		escrowAddress: common.HexToAddress(escrowAddress),
		chainID:       chainID,
	}, nil
}

func (b *Builder) EscrowAddress() common.Address {
	return b.escrowAddress
}

// BuildApprove ERC-20授权托管合约扣款
func (b *Builder) BuildApprove(tokenAddress common.Address, amount *big.Int) (UnsignedTx, error) {
	data, err := erc20ABI.Pack("approve", b.escrowAddress, amount)
	if err != nil {
		return UnsignedTx{}, fmt.Errorf("pack approve: %w", err)
	}
	return b.unsignedTx(tokenAddress, data), nil
}

func (b *Builder) BuildCreateBounty(tokenAddress common.Address, amount, deadline *big.Int, metadataURI string) (UnsignedTx, error) {
	data, err := escrowABI.Pack("createBounty", tokenAddress, amount, deadline, metadataURI)
	if err != nil {
		return UnsignedTx{}, fmt.Errorf("pack createBounty: %w", err)
	}
	return b.unsignedTx(b.escrowAddress, data), nil
}

func (b *Builder) BuildClaimBounty(bountyID *big.Int) (UnsignedTx, error) {
	data, err := escrowABI.Pack("claimBounty", bountyID)
	if err != nil {
		return UnsignedTx{}, fmt.Errorf("pack claimBounty: %w", err)
	}
	return b.unsignedTx(b.escrowAddress, data), nil
}

func (b *Builder) BuildSubmitProof(bountyID *big.Int, proofURI string) (UnsignedTx, error) {
	data, err := escrowABI.Pack("submitProof", bountyID, proofURI)
	if err != nil {
		return UnsignedTx{}, fmt.Errorf("pack submitProof: %w", err)
	}
	return b.unsignedTx(b.escrowAddress, data), nil
}

func (b *Builder) BuildReleaseBounty(bountyID *big.Int) (UnsignedTx, error) {
	data, err := escrowABI.Pack("releaseBounty", bountyID)
	if err != nil {
		return UnsignedTx{}, fmt.Errorf("pack releaseBounty: %w", err)
	}
	return b.unsignedTx(b.escrowAddress, data), nil
}

func (b *Builder) BuildCancelBounty(bountyID *big.Int) (UnsignedTx, error) {
	data, err := escrowABI.Pack("cancelBounty", bountyID)
	if err != nil {
		return UnsignedTx{}, fmt.Errorf("pack cancelBounty: %w", err)
	}
	return b.unsignedTx(b.escrowAddress, data), nil
}

func (b *Builder) unsignedTx(to common.Address, data []byte) UnsignedTx {
	return UnsignedTx{
		To:      to.Hex(),
		Data:    hexutil.Encode(data),
		Value:   "0",
		ChainID: b.chainID,
	}
}
