package loader

// SnapshotScript serializes the frame's document to HTML. Open shadow roots
// are written as declarative <template shadowrootmode="open"> children of
// their host so the extractor can walk them like ordinary markup.
const SnapshotScript = `(() => {
  const text = (s) => s.replace(/&/g, '&amp;').replace(/</g, '&lt;').replace(/>/g, '&gt;');
  const quote = (s) => s.replace(/&/g, '&amp;').replace(/"/g, '&quot;');
  const voids = new Set(['area', 'base', 'br', 'col', 'embed', 'hr', 'img', 'input', 'link', 'meta', 'source', 'track', 'wbr']);
  const skip = new Set(['script', 'style', 'noscript']);
  const children = (node) => {
    let out = '';
    for (const child of node.childNodes) out += serialize(child);
    return out;
  };
  const serialize = (node) => {
    switch (node.nodeType) {
      case Node.TEXT_NODE:
        return text(node.nodeValue || '');
      case Node.DOCUMENT_NODE:
      case Node.DOCUMENT_FRAGMENT_NODE:
        return children(node);
      case Node.ELEMENT_NODE:
        break;
      default:
        return '';
    }
    const tag = node.localName;
    if (skip.has(tag)) return '';
    let out = '<' + tag;
    for (const a of node.attributes) out += ' ' + a.name + '="' + quote(a.value) + '"';
    out += '>';
    if (voids.has(tag)) return out;
    if (node.shadowRoot) {
      out += '<template shadowrootmode="open">' + children(node.shadowRoot) + '</template>';
    }
    out += children(tag === 'template' ? node.content : node);
    return out + '</' + tag + '>';
  };
  return '<!DOCTYPE html>' + serialize(document.documentElement);
})()`

// ScrollScript scrolls to the bottom and back to the top to trigger lazy
// rendering.
const ScrollScript = `(async () => {
  const pause = (ms) => new Promise((resolve) => setTimeout(resolve, ms));
  window.scrollTo(0, document.body ? document.body.scrollHeight : 0);
  await pause(1000);
  window.scrollTo(0, 0);
  await pause(500);
  return true;
})()`
