// Package config はカタログAPIサーバーの設定を読み込む。
//
// 設定はYAMLファイル（任意）と環境変数から構築する。YAML内の ${VAR} は
// 環境変数で展開し、その後で環境変数による上書きとデフォルト値の適用を行う。
// JWT署名用シークレットにはデフォルト値を持たせず、Validate で起動前に検出する。
package config
