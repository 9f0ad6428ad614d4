// calendar-botのエントリーポイント。
// サブコマンド: serve（デフォルト）、migrate、healthcheck。
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/stetskiy2517/calendar-bot/internal/app"
)

func main() {
	// .envがあれば読み込む。本番では環境変数を直接設定するため、無くてもよい
	_ = godotenv.Load()

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
