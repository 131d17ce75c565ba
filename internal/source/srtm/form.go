package srtm

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// loginPage is what the login submission needs from the fetched page: the
// title (checked against the expected one to detect a changed login flow) and
// every hidden form field, echoed back verbatim so anti-forgery tokens
// survive.
type loginPage struct {
	title   string
	hidden  url.Values
	hasForm bool
}

func parseLoginPage(body []byte) (loginPage, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return loginPage{}, fmt.Errorf("parse login page: %w", err)
	}
	page := loginPage{hidden: url.Values{}}

	var walk func(n *html.Node, inLoginForm bool)
	walk = func(n *html.Node, inLoginForm bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if page.title == "" && n.FirstChild != nil {
					page.title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "form":
				if attr(n, "id") == "loginForm" {
					inLoginForm = true
					page.hasForm = true
				}
			case "input":
				if inLoginForm && strings.EqualFold(attr(n, "type"), "hidden") {
					if name := attr(n, "name"); name != "" {
						page.hidden.Set(name, attr(n, "value"))
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inLoginForm)
		}
	}
	walk(doc, false)
	return page, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
