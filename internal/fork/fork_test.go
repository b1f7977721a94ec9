package fork

import (
	"testing"

	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/types"
)

// memChain is a minimal ChainReader backed by a hash map, used to
// build synthetic competing chains for fork-resolution tests.
type memChain struct {
	blocks map[crypto.Hash]*types.Block
}

func newMemChain() *memChain {
	return &memChain{blocks: make(map[crypto.Hash]*types.Block)}
}

func (m *memChain) BlockByHash(hash crypto.Hash) (*types.Block, error) {
	b, ok := m.blocks[hash]
	if !ok {
		return nil, errBlockNotFound
	}
	return b, nil
}

var errBlockNotFound = errNotFound("fork_test: block not found")

type errNotFound string

func (e errNotFound) Error() string { return string(e) }

func chainOf(m *memChain, genesis *types.Block, n int, salt byte) []*types.Block {
	blocks := []*types.Block{genesis}
	parent := genesis
	for i := 1; i <= n; i++ {
		b := types.NewBlock(parent.Number()+1, parent.Hash(), crypto.ZeroHash, crypto.ZeroAddress, nil, 10_000_000, uint64(i)*10+uint64(salt))
		m.blocks[b.Hash()] = b
		blocks = append(blocks, b)
		parent = b
	}
	return blocks
}

func TestFindCommonAncestorSharedGenesis(t *testing.T) {
	m := newMemChain()
	genesis := types.NewGenesisBlock(crypto.ZeroHash)
	m.blocks[genesis.Hash()] = genesis

	chainA := chainOf(m, genesis, 3, 1)
	chainB := chainOf(m, genesis, 4, 2)

	ancestor, err := FindCommonAncestor(m, chainA[len(chainA)-1].Hash(), chainB[len(chainB)-1].Hash())
	if err != nil {
		t.Fatalf("FindCommonAncestor: %v", err)
	}
	if ancestor != genesis.Hash() {
		t.Fatalf("expected genesis hash as ancestor, got %s", ancestor)
	}
}

func TestCalculateReorgPathHappyAndTooDeep(t *testing.T) {
	m := newMemChain()
	genesis := types.NewGenesisBlock(crypto.ZeroHash)
	m.blocks[genesis.Hash()] = genesis

	chainA := chainOf(m, genesis, 3, 1) // A1,A2,A3
	chainB := chainOf(m, genesis, 4, 2) // B1,B2,B3,B4

	oldHead := chainA[len(chainA)-1]
	newHead := chainB[len(chainB)-1]

	path, err := CalculateReorgPath(m, oldHead, newHead, 5)
	if err != nil {
		t.Fatalf("CalculateReorgPath: %v", err)
	}
	if path.CommonAncestor != genesis.Hash() {
		t.Fatalf("wrong ancestor")
	}
	if len(path.RevertBlocks) != 3 || len(path.ApplyBlocks) != 4 {
		t.Fatalf("got revert=%d apply=%d, want 3/4", len(path.RevertBlocks), len(path.ApplyBlocks))
	}
	if path.Depth != 3 {
		t.Fatalf("depth = %d, want 3", path.Depth)
	}
	// revert descending: A3, A2, A1
	if path.RevertBlocks[0].Hash() != chainA[3].Hash() || path.RevertBlocks[2].Hash() != chainA[1].Hash() {
		t.Fatalf("revert blocks not in descending order")
	}
	// apply ascending: B1..B4
	if path.ApplyBlocks[0].Hash() != chainB[1].Hash() || path.ApplyBlocks[3].Hash() != chainB[4].Hash() {
		t.Fatalf("apply blocks not in ascending order")
	}

	if _, err := CalculateReorgPath(m, oldHead, newHead, 2); err == nil {
		t.Fatalf("expected ReorgTooDeep with max_reorg_depth=2")
	}
}

func TestDetectForkNilOnDirectExtension(t *testing.T) {
	genesis := types.NewGenesisBlock(crypto.ZeroHash)
	next := types.NewBlock(1, genesis.Hash(), crypto.ZeroHash, crypto.ZeroAddress, nil, 10_000_000, 10)
	if info := DetectFork(genesis, next); info != nil {
		t.Fatalf("expected nil fork info for direct extension, got %+v", info)
	}
}

func TestDetectForkNonNilOnSiblingBlock(t *testing.T) {
	genesis := types.NewGenesisBlock(crypto.ZeroHash)
	sibling := types.NewBlock(1, crypto.HashBytes([]byte("not genesis")), crypto.ZeroHash, crypto.ZeroAddress, nil, 10_000_000, 10)
	info := DetectFork(genesis, sibling)
	if info == nil {
		t.Fatalf("expected non-nil fork info for sibling block")
	}
}

func TestChooseLatestJustifiedBreaksTiesByLength(t *testing.T) {
	a := Candidate{Tip: []byte("a"), Length: 10, HighestJustified: 5}
	b := Candidate{Tip: []byte("b"), Length: 12, HighestJustified: 5}
	winner, ok := Choose(LatestJustified, []Candidate{a, b})
	if !ok || string(winner.Tip) != "b" {
		t.Fatalf("expected candidate b to win on length tie-break, got %+v", winner)
	}

	c := Candidate{Tip: []byte("c"), Length: 3, HighestJustified: 9}
	winner, ok = Choose(LatestJustified, []Candidate{a, b, c})
	if !ok || string(winner.Tip) != "c" {
		t.Fatalf("expected candidate c to win on higher justified checkpoint, got %+v", winner)
	}
}
