package main

import (
	"database/sql"
	"flag"
	"log"
	"os"
	"path/filepath"
	"sort"

	"commerce-admin-session/internal/infrastructure/config"

	_ "github.com/lib/pq"
)

// 依檔名順序套用 db/migrations 下的 SQL，建立 session 共用狀態所需的
// schema。只有設定了 db.dsn（使用 PostgreSQL store）時才需要執行。
func main() {
	cfgPath := flag.String("config", "config.yaml", "組態檔路徑")
	dir := flag.String("dir", "db/migrations", "migration SQL 檔目錄")
	flag.Parse()

	cfg, err := config.LoadFromFile(*cfgPath)
	if err != nil {
		log.Fatalf("[Migrate] 載入組態失敗: %v", err)
	}
	if cfg.DB.DSN == "" {
		log.Fatal("[Migrate] 未設定 db.dsn（或 DB_DSN）；檔案型 store 不需要 migration")
	}

	files, err := filepath.Glob(filepath.Join(*dir, "*.sql"))
	if err != nil {
		log.Fatalf("[Migrate] 讀取 %s 失敗: %v", *dir, err)
	}
	if len(files) == 0 {
		log.Fatalf("[Migrate] %s 底下沒有任何 .sql 檔", *dir)
	}
	sort.Strings(files)

	db, err := sql.Open("postgres", cfg.DB.DSN)
	if err != nil {
		log.Fatalf("[Migrate] 開啟資料庫失敗: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("[Migrate] 連線資料庫失敗: %v", err)
	}

	for _, f := range files {
		stmts, err := os.ReadFile(f)
		if err != nil {
			log.Fatalf("[Migrate] 讀取 %s 失敗: %v", filepath.Base(f), err)
		}
		if _, err := db.Exec(string(stmts)); err != nil {
			log.Fatalf("[Migrate] 套用 %s 失敗: %v", filepath.Base(f), err)
		}
		log.Printf("[Migrate] 已套用 %s", filepath.Base(f))
	}
	log.Printf("[Migrate] 完成，共 %d 個檔案", len(files))
}
