// カタログサービスの運用ツール。
// 検証用トークンの署名と、稼働中のカタログAPIの疎通確認を行う。
// トークンの発行はログインフローの代替ではなく、運用・動作確認のためのもの。
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/nao1215/storefront/pkg/httpclient"
	"github.com/nao1215/storefront/pkg/middleware"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "catalogctl: %v\n", err)
		os.Exit(1)
	}
}

// newApp はCLIアプリケーションを組み立てる。出力先はテストで差し替える。
func newApp(out io.Writer) *cli.App {
	urlFlag := &cli.StringFlag{
		Name:    "url",
		Usage:   "カタログAPIのベースURL",
		Value:   "http://localhost:5000",
		EnvVars: []string{"CATALOG_URL"},
	}
	tokenFlag := &cli.StringFlag{
		Name:    "token",
		Usage:   "Authorizationヘッダーに付与するトークン",
		EnvVars: []string{"CATALOG_TOKEN"},
	}

	return &cli.App{
		Name:            "catalogctl",
		Usage:           "カタログAPIの運用ツール",
		HideHelpCommand: true,
		Writer:          out,
		Commands: []*cli.Command{
			{
				Name:  "token",
				Usage: "共有鍵で署名したトークンを出力する",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "secret", Usage: "署名用シークレット", EnvVars: []string{"JWT_SECRET"}, Required: true},
					&cli.StringFlag{Name: "sub", Usage: "sub クレーム（ユーザーID）", Required: true},
					&cli.DurationFlag{Name: "ttl", Usage: "有効期間", Value: time.Hour},
					&cli.StringSliceFlag{Name: "claim", Usage: "追加クレーム key=value（複数指定可）"},
				},
				Action: func(c *cli.Context) error {
					extra, err := parseClaims(c.StringSlice("claim"))
					if err != nil {
						return err
					}
					token, err := issueToken(c.String("secret"), c.String("sub"), c.Duration("ttl"), extra, time.Now())
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(out, token)
					return err
				},
			},
			{
				Name:  "health",
				Usage: "ヘルスチェックを呼び出す",
				Flags: []cli.Flag{urlFlag},
				Action: func(c *cli.Context) error {
					var status map[string]string
					if err := httpclient.New(c.String("url")).GetJSON(c.Context, "/health", &status); err != nil {
						return err
					}
					return writeJSON(out, status)
				},
			},
			{
				Name:  "me",
				Usage: "トークンから復元されたクレームを表示する",
				Flags: []cli.Flag{urlFlag, tokenFlag},
				Action: func(c *cli.Context) error {
					client := httpclient.New(c.String("url"), httpclient.WithBearerToken(c.String("token")))
					var claims map[string]any
					if err := client.GetJSON(c.Context, "/api/user/me", &claims); err != nil {
						return err
					}
					return writeJSON(out, claims)
				},
			},
			{
				Name:  "favorites",
				Usage: "お気に入り一覧を表示する",
				Flags: []cli.Flag{urlFlag, tokenFlag},
				Action: func(c *cli.Context) error {
					client := httpclient.New(c.String("url"), httpclient.WithBearerToken(c.String("token")))
					var favorites []map[string]any
					if err := client.GetJSON(c.Context, "/api/user/favorites", &favorites); err != nil {
						return err
					}
					return writeJSON(out, favorites)
				},
			},
		},
	}
}

// issueToken は sub・exp・iat・jti を設定したトークンを署名する。
func issueToken(secret, subject string, ttl time.Duration, extra map[string]any, now time.Time) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("有効期間は正の値を指定してください: %s", ttl)
	}
	return middleware.SignJWT(secret, &middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Extra: extra,
	})
}

// reservedClaims は --claim で上書きさせない登録済みクレーム名。
var reservedClaims = []string{"iss", "sub", "aud", "exp", "nbf", "iat", "jti"}

// parseClaims は key=value 形式の指定を追加クレームに変換する。
func parseClaims(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	extra := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("クレームの形式が不正です（key=value）: %q", p)
		}
		if slices.Contains(reservedClaims, k) {
			return nil, fmt.Errorf("登録済みクレームは --claim で指定できません: %q", k)
		}
		extra[k] = v
	}
	return extra, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
