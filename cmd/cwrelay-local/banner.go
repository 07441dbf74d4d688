package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/cwrelay/internal/config"
)

func printStartupBanner(cfg config.Config, addr string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	sink := func(enabled bool, name, detail string) string {
		if enabled {
			return fmt.Sprintf("    %s  %-14s %s", check, name, cyan.Render(detail))
		}
		return fmt.Sprintf("    %s  %-14s %s", dot, name, dim.Render("disabled"))
	}

	endpointOrDefault := func(override string) string {
		if override != "" {
			return override
		}
		return "region default"
	}

	var lines []string
	lines = append(lines, "")
	lines = append(lines, cyan.Bold(true).Render("    cwrelay "+dim.Render("local invoke harness")))
	lines = append(lines, "")
	lines = append(lines, bold.Render("    Invoke"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "HTTP", cyan.Render("http://"+addr+invokePath)))
	lines = append(lines, "")
	lines = append(lines, bold.Render("    Sinks"))
	lines = append(lines, "")
	lines = append(lines, sink(cfg.InfraEnabled, "Infra", endpointOrDefault(cfg.InfraEndpoint)))
	lines = append(lines, sink(cfg.LoggingEnabled, "Logging", endpointOrDefault(cfg.LoggingEndpoint)))
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}
