//go:build ignore

// generate_hash.go — утилита для секретов леджера.
//
//	go run scripts/generate_hash.go hash <ключ_администратора>
//	    Argon2id-хеш для ADMIN_KEY_HASH.
//	go run scripts/generate_hash.go token <JWT_SECRET> <uuid_пользователя> [срок, напр. 24h]
//	    JWT пользователя для ручной проверки /api/v1/me/* в dev-окружении.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"serotonyl.ru/referral-ledger/internal/server/middleware"
)

func main() {
	if len(os.Args) < 3 {
		usage()
	}

	switch os.Args[1] {
	case "hash":
		hash, err := middleware.HashArgon2id(os.Args[2])
		if err != nil {
			fail(err)
		}
		fmt.Println("Хеш ключа (вставьте в .env как ADMIN_KEY_HASH):")
		fmt.Println(hash)

	case "token":
		if len(os.Args) < 4 {
			usage()
		}
		userID, err := uuid.Parse(os.Args[3])
		if err != nil {
			fail(fmt.Errorf("некорректный uuid: %w", err))
		}
		ttl := 24 * time.Hour
		if len(os.Args) > 4 {
			if ttl, err = time.ParseDuration(os.Args[4]); err != nil {
				fail(fmt.Errorf("некорректный срок: %w", err))
			}
		}
		token, err := middleware.IssueUserToken([]byte(os.Args[2]), userID, jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		})
		if err != nil {
			fail(err)
		}
		fmt.Println(token)

	default:
		usage()
	}
}

func usage() {
	fmt.Println("Использование:")
	fmt.Println("  go run scripts/generate_hash.go hash <ключ>")
	fmt.Println("  go run scripts/generate_hash.go token <JWT_SECRET> <uuid> [срок]")
	os.Exit(1)
}

func fail(err error) {
	fmt.Printf("Ошибка: %v\n", err)
	os.Exit(1)
}
