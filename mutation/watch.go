package mutation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"gorged/models"
)

// CallbackPlaceholder is the single insertion point in watchTemplate. The
// callback body sees the visited element as `node`; returning "stop" ends
// the watch.
const CallbackPlaceholder = "{{callback}}"

const watchTemplate = `(function () {
  "use strict";
  var stopped = false;
  var observer = null;
  function callback(node) {
{{callback}}
  }
  function visit(node) {
    if (stopped) return;
    try {
      if (callback(node) === "stop") stopped = true;
    } catch (e) {
      if (window.console) console.error("gorged: watch callback failed", e);
    }
  }
  function walk(root) {
    if (!root || stopped || root.nodeType !== 1) return;
    visit(root);
    var walker = document.createTreeWalker(root, NodeFilter.SHOW_ELEMENT);
    var node;
    while (!stopped && (node = walker.nextNode())) visit(node);
  }
  function process(records) {
    for (var i = 0; i < records.length && !stopped; i++) {
      var record = records[i];
      if (record.type === "childList") {
        for (var j = 0; j < record.addedNodes.length && !stopped; j++) walk(record.addedNodes[j]);
      } else if (record.type === "attributes") {
        visit(record.target);
      }
    }
  }
  function observe() {
    observer.observe(document, { subtree: true, childList: true, attributes: true });
  }
  function start() {
    walk(document.documentElement);
    if (stopped) return;
    observer = new MutationObserver(function (records) {
      observer.disconnect();
      process(records);
      if (!stopped) observe();
    });
    observe();
  }
  if (document.readyState === "loading") {
    document.addEventListener("DOMContentLoaded", start);
  } else {
    start();
  }
})();
`

// ValidateCallback rejects callback bodies that cannot be embedded in a
// <script> element. The body is otherwise not inspected.
func ValidateCallback(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("empty callback")
	}
	if strings.Contains(strings.ToLower(body), "</script") {
		return fmt.Errorf("callback contains a closing script tag")
	}
	return nil
}

// WatchScript renders the watch template around callback.
func WatchScript(callback string) (string, error) {
	if err := ValidateCallback(callback); err != nil {
		return "", err
	}
	return strings.Replace(watchTemplate, CallbackPlaceholder, callback, 1), nil
}

// Watch injects a script running callback on every element once the page has
// loaded and on every element added or changed afterwards. nonce, when set,
// is copied onto the script so a CSP script-src nonce allows it.
func Watch(doc *goquery.Document, callback, nonce string) error {
	script, err := WatchScript(callback)
	if err != nil {
		return &models.MutationError{Strategy: DynamicHide.String(), Err: err}
	}
	var attrs []html.Attribute
	if nonce != "" {
		attrs = append(attrs, html.Attribute{Key: "nonce", Val: nonce})
	}
	if _, err := InsertInsistently(doc, newElement(atom.Script, script, attrs...)); err != nil {
		return err
	}
	return nil
}

func jsString(s string) string {
	// json.Marshal escapes '<', so a selector can never close the script.
	b, _ := json.Marshal(s)
	return string(b)
}

// HideMatching is a callback hiding every element matching selector.
func HideMatching(selector string) string {
	return fmt.Sprintf(`    if (node.matches && node.matches(%s)) {
      node.style.setProperty("display", "none", "important");
    }`, jsString(selector))
}

// RemoveMatching is a callback removing elements matching selector. With once
// set the watch stops after the first removal.
func RemoveMatching(selector string, once bool) string {
	ret := ""
	if once {
		ret = "\n      return \"stop\";"
	}
	return fmt.Sprintf(`    if (node.matches && node.matches(%s)) {
      node.remove();%s
    }`, jsString(selector), ret)
}
