// Command policyqa 是运维用命令行：入库、检索、问答以及签发 token。
package main

import (
	"os"

	"policyqa-go/pkg/log"
)

func main() {
	defer log.Sync()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
