package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment variables")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	seedFruitTypes(ctx, pool)
	seedThresholds(ctx, pool)
	seedDailyPrices(ctx, pool)

	log.Println("seeding completed")
}

func seedFruitTypes(ctx context.Context, pool *pgxpool.Pool) {
	fruitTypes := []struct {
		Code string
		Name string
	}{
		{"cafe", "Café"},
		{"cacao", "Cacao"},
		{"miel", "Miel"},
		{"coco", "Coco"},
	}
	log.Println("seeding fruit types...")
	for _, ft := range fruitTypes {
		_, err := pool.Exec(ctx, `
			INSERT INTO fruit_types (code, name)
			VALUES ($1, $2)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name`,
			ft.Code, ft.Name)
		if err != nil {
			log.Printf("seed fruit type %s: %v", ft.Code, err)
		}
	}
}

func seedThresholds(ctx context.Context, pool *pgxpool.Pool) {
	thresholds := []struct {
		FruitType string
		Metric    string
		Limit     string
	}{
		{"cacao", "violetas", "10"},
		{"cacao", "humedad", "15"},
		{"cacao", "moho", "5"},
		{"cafe", "humedad", "12"},
	}
	log.Println("seeding quality thresholds...")
	for _, t := range thresholds {
		_, err := pool.Exec(ctx, `
			INSERT INTO quality_thresholds (fruit_type_id, metric, limit_percent, enabled)
			SELECT id, $2, $3, true FROM fruit_types WHERE code = $1
			ON CONFLICT (fruit_type_id, metric) DO UPDATE SET limit_percent = EXCLUDED.limit_percent`,
			t.FruitType, t.Metric, t.Limit)
		if err != nil {
			log.Printf("seed threshold %s/%s: %v", t.FruitType, t.Metric, err)
		}
	}
}

func seedDailyPrices(ctx context.Context, pool *pgxpool.Pool) {
	prices := []struct {
		FruitType string
		Price     string
	}{
		{"cacao", "12.50"},
		{"cafe", "9.80"},
		{"miel", "18.00"},
		{"coco", "3.20"},
	}
	today := time.Now().Format("2006-01-02")
	log.Println("seeding daily prices...")
	for _, p := range prices {
		_, err := pool.Exec(ctx, `
			INSERT INTO daily_prices (fruit_type_id, price_per_kg, valid_date)
			SELECT id, $2, $3::date FROM fruit_types WHERE code = $1
			ON CONFLICT (fruit_type_id, valid_date) DO UPDATE SET price_per_kg = EXCLUDED.price_per_kg`,
			p.FruitType, p.Price, today)
		if err != nil {
			log.Printf("seed price %s: %v", p.FruitType, err)
		}
	}
}
