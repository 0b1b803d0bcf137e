package listing

// searchPageHTML は検索結果ページの最小構成。
// 3件目はタイトル要素、4件目は価格要素を欠くためスキップされる。
const searchPageHTML = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>検索結果</title></head>
<body>
<ul class="Products__items">
  <li class="Product">
    <div class="Product__image"><img class="Product__imageData" src="https://auctions.c.yimg.jp/img/a1.jpg"></div>
    <h3 class="Product__title"><a class="Product__titleLink" href="https://page.auctions.yahoo.co.jp/jp/auction/a1">クボタ トラクター <b>L2501</b></a></h3>
    <span class="Product__priceValue">1,200,000円</span>
  </li>
  <li class="Product">
    <div class="Product__image"><img class="Product__imageData" data-src="/img/a2.jpg"></div>
    <h3 class="Product__title"><a class="Product__titleLink" href="/jp/auction/a2">クボタ L2501 4WD</a></h3>
    <span class="Product__priceValue">価格未定</span>
  </li>
  <li class="Product">
    <span class="Product__priceValue">50,000円</span>
  </li>
  <li class="Product">
    <a class="Product__titleLink" href="https://page.auctions.yahoo.co.jp/jp/auction/a4">価格なし</a>
  </li>
  <li class="Product">
    <a class="Product__titleLink" href="javascript:alert(1)">ヤンマー YT220</a>
    <img class="Product__imageData" src="http://169.254.169.254/latest">
    <span class="Product__priceValue">980,000円</span>
  </li>
</ul>
</body></html>`

// closedPageHTML は終了したオークションの検索結果ページ。
const closedPageHTML = `<html><body>
<li class="Product">
  <a class="Product__titleLink" href="https://page.auctions.yahoo.co.jp/jp/auction/c1">クボタ L2501 落札</a>
  <span class="Product__priceValue">900,000円</span>
  <span class="Product__time">10/01
    21:03</span>
</li>
</body></html>`

// emptyPageHTML は検索結果0件のページ。
const emptyPageHTML = `<html><body><p>条件に一致する商品は見つかりませんでした。</p></body></html>`
