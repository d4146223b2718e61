// Package config 提供 ChatFlow 的配置管理功能。
//
// 支持从 YAML 文件与环境变量加载配置，环境变量覆盖文件，
// 文件覆盖默认值。房间到机器人的映射只能通过 YAML 配置。
package config
