package main

import (
	"context"
	"database/sql"
	"flag"
	"log"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/nemonet1337/zaiVariantStock/internal/config"
	"github.com/nemonet1337/zaiVariantStock/migrations"
)

func main() {
	log.Println("zaiVariantStock マイグレーション実行ツール")

	flag.Parse()

	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("設定読み込みに失敗しました:", err)
	}

	log.Printf("データベースに接続中: %s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		log.Fatal("データベース接続に失敗しました:", err)
	}
	defer db.Close()

	// 接続テスト
	if err := db.Ping(); err != nil {
		log.Fatal("データベースpingに失敗しました:", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal("goose方言の設定に失敗しました:", err)
	}

	// 引数なしはup
	arguments := flag.Args()
	if len(arguments) == 0 {
		arguments = []string{"up"}
	}
	command, args := arguments[0], arguments[1:]

	if err := goose.RunContext(context.Background(), command, db, ".", args...); err != nil {
		log.Fatalf("マイグレーション %s に失敗しました: %v", command, err)
	}

	log.Printf("マイグレーション %s が完了しました", command)
}
