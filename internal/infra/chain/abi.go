package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// quizABI is the subset of the quiz protocol contract this service calls.
const quizABI = `[{
	"type": "function",
	"name": "submitQuiz",
	"stateMutability": "nonpayable",
	"inputs": [{"name": "commitment", "type": "bytes32"}],
	"outputs": []
}]`

const submitQuizMethod = "submitQuiz"

var parsedQuizABI = mustParseABI(quizABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("chain: parse contract abi: %v", err))
	}
	return parsed
}

// PackSubmitQuiz returns the calldata for submitQuiz(commitment).
func PackSubmitQuiz(commitment [32]byte) ([]byte, error) {
	data, err := parsedQuizABI.Pack(submitQuizMethod, commitment)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", submitQuizMethod, err)
	}
	return data, nil
}
