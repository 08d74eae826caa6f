package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	addr    = flag.String("addr", "127.0.0.1:12345", "Relay server address")
	timeout = flag.Duration("timeout", 5*time.Second, "Connection timeout")

	senderColor = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// colorize - highlights sender address of relayed line, if any.
func colorize(line string) string {
	i := strings.Index(line, ": ")
	if i <= 0 || net.ParseIP(line[:i]) == nil {
		return line
	}
	return senderColor(line[:i+1]) + line[i+1:]
}

// relay - prints lines from r to w until r is exhausted.
func relay(w io.Writer, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fmt.Fprintln(w, colorize(scanner.Text()))
	}
	return scanner.Err()
}

func main() {
	flag.Parse()

	conn, err := net.DialTimeout("tcp", *addr, *timeout)
	if err != nil {
		color.Red(err.Error())
		os.Exit(1)
	}
	defer conn.Close()
	color.Cyan("Connected to %s, type messages and press Enter, Ctrl-D to quit", conn.RemoteAddr())

	received := make(chan error, 1)
	go func() {
		received <- relay(color.Output, conn)
	}()

	sent := make(chan error, 1)
	go func() {
		_, err := io.Copy(conn, os.Stdin)
		sent <- err
	}()

	select {
	case err := <-received:
		if err != nil {
			color.Red(err.Error())
			os.Exit(1)
		}
		color.Yellow("Server has closed connection")
	case err := <-sent:
		if err != nil {
			color.Red(err.Error())
			os.Exit(1)
		}
	}
}
