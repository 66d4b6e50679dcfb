package main

import (
	"fmt"
	"github.com/holiman/uint256"
)

func main() {
	base := new(uint256.Int).Lsh(uint256.NewInt(0xFFFF000000000000), 192)
	fmt.Println("base", base.Hex())
	shifted := new(uint256.Int).Lsh(base, 32)
	fmt.Println("shifted", shifted.Hex())
}
